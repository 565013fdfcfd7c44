package models_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crycare/cry-pipeline/features"
	"github.com/crycare/cry-pipeline/models"
	"github.com/crycare/cry-pipeline/models/modeltest"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := modeltest.Dir(t)

	b, err := models.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Manifest.Version != "test-1" {
		t.Fatalf("version: got %q", b.Manifest.Version)
	}
	want, _ := modeltest.Bundle().Snapshot()
	got, err := b.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !bytes.Equal(want, got) {
		t.Fatal("loaded bundle differs from saved bundle")
	}
	if len(b.Schema()) != len(features.Fields()) {
		t.Fatalf("schema: got %d fields", len(b.Schema()))
	}
}

func TestLoadWithoutManifestUsesDefaults(t *testing.T) {
	dir := modeltest.Dir(t)
	if err := os.Remove(filepath.Join(dir, models.ManifestFile)); err != nil {
		t.Fatalf("remove manifest: %v", err)
	}
	b, err := models.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Manifest.Version != "unversioned" {
		t.Fatalf("version: got %q", b.Manifest.Version)
	}
}

func TestLoadFailures(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		if _, err := models.Load(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("missing artifact", func(t *testing.T) {
		dir := modeltest.Dir(t)
		os.Remove(filepath.Join(dir, "knn.msgpack"))
		_, err := models.Load(dir)
		if err == nil || !strings.Contains(err.Error(), "knn") {
			t.Fatalf("expected knn error, got %v", err)
		}
	})
	t.Run("corrupt artifact", func(t *testing.T) {
		dir := modeltest.Dir(t)
		if err := os.WriteFile(filepath.Join(dir, "pca.msgpack"), []byte("garbage"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := models.Load(dir); err == nil {
			t.Fatal("expected decode error")
		}
	})
	t.Run("bad manifest", func(t *testing.T) {
		dir := modeltest.Dir(t)
		if err := os.WriteFile(filepath.Join(dir, models.ManifestFile), []byte("version: [oops"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := models.Load(dir); err == nil {
			t.Fatal("expected manifest error")
		}
	})
}

func TestValidateDimensions(t *testing.T) {
	b := modeltest.Bundle()
	b.KNN.X = [][]float64{{0, 0, 0}}
	b.KNN.Y = []int{1}
	if err := b.Validate(); err == nil || !strings.Contains(err.Error(), "KNN") {
		t.Fatalf("expected KNN width error, got %v", err)
	}

	b = modeltest.Bundle()
	b.PCA.Mean = b.PCA.Mean[:10]
	if err := b.Validate(); err == nil {
		t.Fatal("expected pca error")
	}

	b = modeltest.Bundle()
	b.Labels.Classes = nil
	if err := b.Validate(); err == nil {
		t.Fatal("expected label error")
	}
}

func TestSchemaFallsBackToManifest(t *testing.T) {
	b := modeltest.Bundle()
	b.Scaler.FeatureNames = nil
	if b.Schema() != nil {
		t.Fatalf("expected nil schema, got %v", b.Schema())
	}
	b.Manifest.FeatureSchema = features.Fields()
	if got := b.Schema(); len(got) != len(features.Fields()) || got[0] != "mfcc_1" {
		t.Fatalf("schema: %v", got)
	}
	b.Manifest.FeatureSchema = []string{"zcr"}
	if err := b.Validate(); err == nil {
		t.Fatal("expected schema width error")
	}
}

func TestFingerprintStable(t *testing.T) {
	a, err := modeltest.Bundle().Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, _ := modeltest.Bundle().Fingerprint()
	if a != b || len(a) != 12 {
		t.Fatalf("fingerprints: %q %q", a, b)
	}
	other := modeltest.Bundle()
	other.Scaler.Mean[0] = 1
	c, _ := other.Fingerprint()
	if c == a {
		t.Fatal("fingerprint ignored a parameter change")
	}
}
