package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/goccy/go-yaml"
)

const (
	// ConfigBaseName is the base name of the configuration file without extension.
	ConfigBaseName = "da-sequencer"
	// ConfigExtension is the file extension for the configuration file without the leading dot.
	ConfigExtension = "yaml"
	// ConfigName is the filename of the configuration file.
	ConfigName = ConfigBaseName + "." + ConfigExtension
	// AppConfigDir is the directory inside the root directory holding the configuration file.
	AppConfigDir = "config"
)

// ConfigPath returns the path of the configuration file.
func (c Config) ConfigPath() string {
	return filepath.Join(c.RootDir, AppConfigDir, ConfigName)
}

// SaveAsYaml writes the configuration to RootDir/config/da-sequencer.yaml.
// Every field is preceded by its comment tag.
func (c Config) SaveAsYaml() error {
	configPath := c.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPerm); err != nil {
		return fmt.Errorf("could not create directory %q: %w", filepath.Dir(configPath), err)
	}

	yamlCommentMap := yaml.CommentMap{}
	addComment := func(path string, comment string) {
		yamlCommentMap[path] = []*yaml.Comment{
			yaml.HeadComment(comment),
		}
	}

	var processFields func(t reflect.Type, prefix string)
	processFields = func(t reflect.Type, prefix string) {
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}

			yamlTag := field.Tag.Get("yaml")
			if yamlTag == "" || yamlTag == "-" {
				continue
			}

			fieldPath := yamlTag
			if prefix != "" {
				fieldPath = prefix + "." + fieldPath
			}
			if comment := field.Tag.Get("comment"); comment != "" {
				addComment("$."+fieldPath, comment)
			}

			fieldType := field.Type
			if fieldType.Kind() == reflect.Ptr {
				fieldType = fieldType.Elem()
			}
			if fieldType.Kind() == reflect.Struct && fieldType != reflect.TypeOf(DurationWrapper{}) {
				processFields(fieldType, fieldPath)
			}
		}
	}
	processFields(reflect.TypeOf(Config{}), "")

	data, err := yaml.MarshalWithOptions(c, yaml.WithComment(yamlCommentMap))
	if err != nil {
		return fmt.Errorf("error marshaling YAML data: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("error writing %s file: %w", ConfigName, err)
	}
	return nil
}

// EnsureRoot ensures that the root directory exists.
func EnsureRoot(rootDir string) error {
	if rootDir == "" {
		return fmt.Errorf("root directory cannot be empty")
	}

	if err := os.MkdirAll(rootDir, DefaultDirPerm); err != nil {
		return fmt.Errorf("could not create directory %q: %w", rootDir, err)
	}

	return nil
}
