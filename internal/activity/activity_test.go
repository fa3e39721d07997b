package activity_test

import (
	"strings"
	"testing"

	"cratedig/internal/activity"
)

func observation() activity.TrackObservation {
	return activity.TrackObservation{
		SoundcloudID: 1001,
		Title:        "Xtal",
		Artist:       "Aphex Twin",
		Tags:         []string{"ambient", "idm"},
		DurationMS:   293000,
		PermalinkURL: "https://soundcloud.com/aphex/xtal",
		LikedAt:      "2024-05-01T10:00:00Z",
	}
}

func TestTrackNormalizationAssignsCanonicalID(t *testing.T) {
	n := activity.NewNormalizer(nil)
	record, changed, err := n.Track(observation(), false)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if !changed {
		t.Fatal("first observation should read as changed")
	}
	if record.TrackID != "soundcloud:1001" {
		t.Fatalf("unexpected track id %q", record.TrackID)
	}
	if record.SourceID != "1001" {
		t.Fatalf("unexpected source id %q", record.SourceID)
	}
}

func TestTrackRequiresTitleAndID(t *testing.T) {
	n := activity.NewNormalizer(nil)

	bad := observation()
	bad.Title = "   "
	if _, _, err := n.Track(bad, false); err == nil {
		t.Fatal("expected error for missing title")
	}

	bad = observation()
	bad.SoundcloudID = 0
	if _, _, err := n.Track(bad, false); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestRepeatObservationReadsUnchanged(t *testing.T) {
	n := activity.NewNormalizer(nil)
	if _, changed, err := n.Track(observation(), false); err != nil || !changed {
		t.Fatalf("first observation: changed=%v err=%v", changed, err)
	}
	if _, changed, err := n.Track(observation(), false); err != nil {
		t.Fatalf("second observation: %v", err)
	} else if changed {
		t.Fatal("identical observation should read as unchanged")
	}

	mutated := observation()
	mutated.Title = "Xtal (Remaster)"
	if _, changed, err := n.Track(mutated, false); err != nil || !changed {
		t.Fatalf("mutated observation should read as changed: changed=%v err=%v", changed, err)
	}
}

func TestTagReorderIsNotAChange(t *testing.T) {
	n := activity.NewNormalizer(nil)
	if _, _, err := n.Track(observation(), false); err != nil {
		t.Fatalf("seed observation: %v", err)
	}

	reordered := observation()
	reordered.Tags = []string{"idm", "ambient"}
	_, changed, err := n.Track(reordered, false)
	if err != nil {
		t.Fatalf("reordered observation: %v", err)
	}
	if changed {
		t.Fatal("tag reorder alone should not read as a change")
	}
}

func TestForceOverridesSignatureCache(t *testing.T) {
	n := activity.NewNormalizer(nil)
	if _, _, err := n.Track(observation(), false); err != nil {
		t.Fatalf("seed observation: %v", err)
	}
	if _, changed, err := n.Track(observation(), true); err != nil || !changed {
		t.Fatalf("forced observation should read as changed: changed=%v err=%v", changed, err)
	}
}

func TestForgetResetsSignature(t *testing.T) {
	n := activity.NewNormalizer(nil)
	record, _, err := n.Track(observation(), false)
	if err != nil {
		t.Fatalf("seed observation: %v", err)
	}
	n.Forget(record.TrackID)
	if _, changed, err := n.Track(observation(), false); err != nil || !changed {
		t.Fatalf("observation after Forget should read as changed: changed=%v err=%v", changed, err)
	}
}

func playlistObservation() activity.PlaylistObservation {
	return activity.PlaylistObservation{
		SoundcloudID: 33,
		Title:        "Late Night",
		Tags:         []string{"mix"},
		Tracks: []activity.MemberReference{
			{SoundcloudID: 1001, Position: 1},
			{SoundcloudID: 1002, Position: 2},
		},
	}
}

func TestPlaylistNormalizationOrdersMembers(t *testing.T) {
	n := activity.NewNormalizer(nil)
	obs := playlistObservation()
	obs.Tracks = []activity.MemberReference{
		{SoundcloudID: 1002, Position: 2},
		{SoundcloudID: 1001, Position: 1},
	}
	record, changed, err := n.Playlist(obs, false)
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	if !changed {
		t.Fatal("first playlist observation should read as changed")
	}
	if record.PlaylistID != "soundcloud:33" {
		t.Fatalf("unexpected playlist id %q", record.PlaylistID)
	}
	if record.TrackCount != 2 {
		t.Fatalf("unexpected track count %d", record.TrackCount)
	}
	if record.Members[0].TrackID != "soundcloud:1001" || record.Members[1].TrackID != "soundcloud:1002" {
		t.Fatalf("members not ordered by position: %+v", record.Members)
	}
}

func TestPlaylistSignatureIgnoresMemberMetadata(t *testing.T) {
	n := activity.NewNormalizer(nil)
	if _, _, err := n.Playlist(playlistObservation(), false); err != nil {
		t.Fatalf("seed playlist: %v", err)
	}

	// Same playlist, same member ids and order. The member tracks' own
	// metadata lives on the track records and must not affect this.
	if _, changed, err := n.Playlist(playlistObservation(), false); err != nil {
		t.Fatalf("repeat playlist: %v", err)
	} else if changed {
		t.Fatal("identical playlist should read as unchanged")
	}

	reordered := playlistObservation()
	reordered.Tracks = []activity.MemberReference{
		{SoundcloudID: 1002, Position: 1},
		{SoundcloudID: 1001, Position: 2},
	}
	if _, changed, err := n.Playlist(reordered, false); err != nil || !changed {
		t.Fatalf("member reorder should read as changed: changed=%v err=%v", changed, err)
	}
}

func TestNormalizerTrimsFields(t *testing.T) {
	n := activity.NewNormalizer(nil)
	obs := observation()
	obs.Title = "  Xtal  "
	obs.Artist = " Aphex Twin "
	obs.Tags = []string{" ambient ", "", "idm"}
	record, _, err := n.Track(obs, false)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if record.Title != "Xtal" || record.Artist != "Aphex Twin" {
		t.Fatalf("fields not trimmed: %q %q", record.Title, record.Artist)
	}
	if strings.Join(record.Tags, ",") != "ambient,idm" {
		t.Fatalf("tags not cleaned: %v", record.Tags)
	}
}
