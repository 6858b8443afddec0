package dataset

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Manifest records the pipeline parameters a dataset was built with. The
// truncation limit lives here so resume runs can verify it directly instead
// of inferring it from observed text lengths (that inference cannot tell
// "no truncation configured" apart from "nothing happened to be cut").
type Manifest struct {
	DocketID      string    `yaml:"docket_id"`
	TruncateChars int       `yaml:"truncate_chars"`
	Model         string    `yaml:"model,omitempty"`
	CreatedAt     time.Time `yaml:"created_at"`
	UpdatedAt     time.Time `yaml:"updated_at"`
}

// SaveManifest writes the manifest atomically.
func SaveManifest(path string, m *Manifest) error {
	m.UpdatedAt = time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "dataset: marshal manifest")
	}
	return writeAtomic(path, data)
}

// LoadManifest reads the manifest. Returns (nil, nil) when the file does not
// exist, which callers treat as "dataset predates the manifest".
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "dataset: read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "dataset: unmarshal manifest %s", path)
	}
	return &m, nil
}
