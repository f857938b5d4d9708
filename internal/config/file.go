package config

import (
    "bytes"
    "errors"
    "fmt"
    "io"
    "os"

    "gopkg.in/yaml.v3"
)

// applyFile decodes the YAML file at path over cfg. Keys absent from the
// file keep their current values; unknown keys are rejected.
func applyFile(cfg *Config, path string) error {
    data, err := os.ReadFile(path)
    if err != nil {
        return fmt.Errorf("read config file: %w", err)
    }
    dec := yaml.NewDecoder(bytes.NewReader(data))
    dec.KnownFields(true)
    if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
        return fmt.Errorf("parse config file %s: %w", path, err)
    }
    return nil
}
