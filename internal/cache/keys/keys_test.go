package keys

import (
	"regexp"
	"testing"

	"github.com/trafficlens/datalayer/internal/model"
)

func TestBucket_Determinism(t *testing.T) {
	k1 := Bucket(12.9716, 77.5946, 3)
	k2 := Bucket(12.9716, 77.5946, 3)
	if k1 != k2 {
		t.Fatalf("determinism failed: %s vs %s", k1, k2)
	}
}

func TestBucket_NearbyCoordinatesShareKey(t *testing.T) {
	// rounds to the same 3-decimal cell
	k1 := Bucket(12.9716, 77.5946, 3)
	k2 := Bucket(12.97161, 77.59459, 3)
	if k1 != k2 {
		t.Fatalf("coordinates in the same cell produced different keys:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestBucket_DistantCoordinatesDiffer(t *testing.T) {
	k1 := Bucket(12.9716, 77.5946, 3)
	k2 := Bucket(12.9726, 77.5946, 3)
	if k1 == k2 {
		t.Fatal("coordinates one cell apart must produce different keys")
	}
}

func TestBucket_PrecisionChangesKeySpace(t *testing.T) {
	k3 := Bucket(12.97161, 77.59459, 3)
	k5 := Bucket(12.97161, 77.59459, 5)
	if k3 == k5 {
		t.Fatal("precision must be part of the key derivation")
	}
}

func TestBucket_Format(t *testing.T) {
	k := Bucket(-0.0001, 77.5946, 3)
	if !regexp.MustCompile(`^est:-?\d+\.\d{3}:-?\d+\.\d{3}$`).MatchString(k) {
		t.Fatalf("unexpected key format: %s", k)
	}
	if k != "est:0.000:77.595" {
		t.Fatalf("negative zero leaked into key: %s", k)
	}
}

func TestBucketsForBBox_CoversGrid(t *testing.T) {
	b := model.BBox{MinLat: 12.970, MinLon: 77.594, MaxLat: 12.972, MaxLon: 77.595}
	got := BucketsForBBox(b, 3)
	// 3 lat steps x 2 lon steps
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6: %v", len(got), got)
	}
	seen := map[string]bool{}
	for _, k := range got {
		if seen[k] {
			t.Fatalf("duplicate bucket %s", k)
		}
		seen[k] = true
	}
	if !seen[Bucket(12.970, 77.594, 3)] {
		t.Fatalf("missing corner bucket in %v", got)
	}
}

func TestFingerprint_StableAndSensitive(t *testing.T) {
	q := model.ClusterQuery{Zoom: 12, EpsMeters: 250, MinSamples: 4, MinSeverity: 0.5}
	if Fingerprint(q) != Fingerprint(q) {
		t.Fatal("fingerprint not stable")
	}
	q2 := q
	q2.MinSeverity = 0.6
	if Fingerprint(q) == Fingerprint(q2) {
		t.Fatal("fingerprint must change with parameters")
	}
	if !regexp.MustCompile(`^[0-9a-f]{16}$`).MatchString(Fingerprint(q)) {
		t.Fatalf("unexpected fingerprint format: %s", Fingerprint(q))
	}
}
