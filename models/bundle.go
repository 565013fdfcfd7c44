// Package models loads the frozen preprocessing transforms, classifiers and
// label table the pipeline runs on. A Bundle is loaded once at startup and
// never written afterwards.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional index inside a model directory.
const ManifestFile = "manifest.yaml"

// Artifacts names the blob file of each frozen component, relative to the
// model directory.
type Artifacts struct {
	Scaler       string `yaml:"scaler"`
	PCA          string `yaml:"pca"`
	RandomForest string `yaml:"random_forest"`
	KNN          string `yaml:"knn"`
	XGBoost      string `yaml:"xgboost"`
	LabelEncoder string `yaml:"label_encoder"`
}

// Manifest versions a model directory. FeatureSchema supplies the column
// order when the scaler did not record feature names.
type Manifest struct {
	Version       string    `yaml:"version"`
	Artifacts     Artifacts `yaml:"artifacts"`
	FeatureSchema []string  `yaml:"feature_schema,omitempty"`
}

// DefaultManifest is assumed when a directory has no manifest.yaml.
func DefaultManifest() Manifest {
	return Manifest{
		Version: "unversioned",
		Artifacts: Artifacts{
			Scaler:       "scaler.msgpack",
			PCA:          "pca.msgpack",
			RandomForest: "random_forest.msgpack",
			KNN:          "knn.msgpack",
			XGBoost:      "xgboost.msgpack",
			LabelEncoder: "label_encoder.msgpack",
		},
	}
}

// Bundle is the complete frozen model state.
type Bundle struct {
	Manifest Manifest
	Scaler   *Scaler
	PCA      *PCA
	Forest   *RandomForest
	KNN      *KNN
	Boost    *GradientBoosting
	Labels   *LabelEncoder
}

// Load reads and validates every artifact in dir. Any missing or unreadable
// artifact is an error; callers treat it as fatal.
func Load(dir string) (*Bundle, error) {
	man, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	b := &Bundle{
		Manifest: man,
		Scaler:   &Scaler{},
		PCA:      &PCA{},
		Forest:   &RandomForest{},
		KNN:      &KNN{},
		Boost:    &GradientBoosting{},
		Labels:   &LabelEncoder{},
	}
	a := man.Artifacts
	blobs := []struct {
		name string
		file string
		dst  any
	}{
		{"scaler", a.Scaler, b.Scaler},
		{"pca", a.PCA, b.PCA},
		{"random_forest", a.RandomForest, b.Forest},
		{"knn", a.KNN, b.KNN},
		{"xgboost", a.XGBoost, b.Boost},
		{"label_encoder", a.LabelEncoder, b.Labels},
	}
	for _, blob := range blobs {
		if blob.file == "" {
			return nil, fmt.Errorf("model %s: no artifact file configured", blob.name)
		}
		if err := readBlob(filepath.Join(dir, blob.file), blob.dst); err != nil {
			return nil, fmt.Errorf("model %s: %w", blob.name, err)
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func readManifest(dir string) (Manifest, error) {
	man := DefaultManifest()
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		if _, statErr := os.Stat(dir); statErr != nil {
			return Manifest{}, fmt.Errorf("model directory: %w", statErr)
		}
		return man, nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &man); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return man, nil
}

func readBlob(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Save writes the bundle into dir as a manifest plus one msgpack blob per
// artifact.
func (b *Bundle) Save(dir string) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	man := b.Manifest
	def := DefaultManifest()
	if man.Version == "" {
		man.Version = def.Version
	}
	if man.Artifacts == (Artifacts{}) {
		man.Artifacts = def.Artifacts
	}
	a := man.Artifacts
	blobs := []struct {
		file string
		src  any
	}{
		{a.Scaler, b.Scaler},
		{a.PCA, b.PCA},
		{a.RandomForest, b.Forest},
		{a.KNN, b.KNN},
		{a.XGBoost, b.Boost},
		{a.LabelEncoder, b.Labels},
	}
	for _, blob := range blobs {
		data, err := msgpack.Marshal(blob.src)
		if err != nil {
			return fmt.Errorf("encode %s: %w", blob.file, err)
		}
		if err := os.WriteFile(filepath.Join(dir, blob.file), data, 0o644); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(man)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
}

// Validate checks that the artifacts fit together: scaler width equals PCA
// input width, and every classifier reads the PCA output width.
func (b *Bundle) Validate() error {
	if b.Scaler == nil || b.PCA == nil || b.Forest == nil || b.KNN == nil || b.Boost == nil || b.Labels == nil {
		return errors.New("model bundle incomplete")
	}
	if err := b.Scaler.validate(); err != nil {
		return err
	}
	if err := b.PCA.validate(); err != nil {
		return err
	}
	if b.PCA.NInputs() != b.Scaler.NFeatures() {
		return fmt.Errorf("pca expects %d inputs, scaler produces %d", b.PCA.NInputs(), b.Scaler.NFeatures())
	}
	if len(b.Labels.Classes) == 0 {
		return errors.New("label encoder has no classes")
	}
	for _, c := range b.Classifiers() {
		if c.NInputs() != b.PCA.NComponents() {
			return fmt.Errorf("%s expects %d inputs, pca produces %d", c.Name(), c.NInputs(), b.PCA.NComponents())
		}
	}
	if s := b.Manifest.FeatureSchema; len(b.Scaler.FeatureNames) == 0 && len(s) != 0 && len(s) != b.Scaler.NFeatures() {
		return fmt.Errorf("manifest feature schema has %d fields, scaler has %d", len(s), b.Scaler.NFeatures())
	}
	return nil
}

// Classifiers returns the ensemble members in voting order.
func (b *Bundle) Classifiers() []Classifier {
	return []Classifier{b.Forest, b.KNN, b.Boost}
}

// Schema returns the ordered feature columns the scaler expects: its recorded
// feature names, else the manifest's feature_schema, else nil.
func (b *Bundle) Schema() []string {
	if len(b.Scaler.FeatureNames) > 0 {
		return append([]string(nil), b.Scaler.FeatureNames...)
	}
	if len(b.Manifest.FeatureSchema) > 0 {
		return append([]string(nil), b.Manifest.FeatureSchema...)
	}
	return nil
}

type snapshot struct {
	Manifest Manifest          `msgpack:"manifest"`
	Scaler   *Scaler           `msgpack:"scaler"`
	PCA      *PCA              `msgpack:"pca"`
	Forest   *RandomForest     `msgpack:"forest"`
	KNN      *KNN              `msgpack:"knn"`
	Boost    *GradientBoosting `msgpack:"boost"`
	Labels   *LabelEncoder     `msgpack:"labels"`
}

// Snapshot serialises the whole bundle; two bundles with equal snapshots hold
// equal parameters.
func (b *Bundle) Snapshot() ([]byte, error) {
	return msgpack.Marshal(snapshot{
		Manifest: b.Manifest,
		Scaler:   b.Scaler,
		PCA:      b.PCA,
		Forest:   b.Forest,
		KNN:      b.KNN,
		Boost:    b.Boost,
		Labels:   b.Labels,
	})
}

// Fingerprint is a short content hash of the bundle for logs and health
// output.
func (b *Bundle) Fingerprint() (string, error) {
	data, err := b.Snapshot()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6]), nil
}
