package namespace

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultMaxNameLength is the longest accepted node name, in characters.
const DefaultMaxNameLength = 255

// DefaultNamePattern is the character allow-list for folder names.
const DefaultNamePattern = `^[a-zA-Z0-9 \-_\\\[\]()@#!$%*+={}:;<>,.?/|~` + "`" + `]*$`

// NameRules validates node names.
//
// Folder names must be non-empty, within MaxLength and match Pattern. File
// names come from uploaded media and only need to be non-empty and within
// MaxLength.
type NameRules struct {
	Pattern   *regexp.Regexp
	MaxLength int
}

// DefaultNameRules returns the rules used when none are configured.
func DefaultNameRules() *NameRules {
	return &NameRules{
		Pattern:   regexp.MustCompile(DefaultNamePattern),
		MaxLength: DefaultMaxNameLength,
	}
}

// NewNameRules compiles pattern; empty values fall back to the defaults.
func NewNameRules(pattern string, maxLength int) (*NameRules, error) {
	rules := DefaultNameRules()
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		rules.Pattern = re
	}
	if maxLength > 0 {
		rules.MaxLength = maxLength
	}
	return rules, nil
}

// ValidateFolderName checks a folder name against every rule.
func (r *NameRules) ValidateFolderName(name string) error {
	err := validation.Validate(name,
		validation.Required.Error("name cannot be empty"),
		validation.RuneLength(1, r.MaxLength).Error("name is too long"),
		validation.Match(r.Pattern).Error("name contains invalid characters"),
	)
	return nameError(err, name)
}

// ValidateFileName checks a file name for presence and length.
func (r *NameRules) ValidateFileName(name string) error {
	err := validation.Validate(name,
		validation.Required.Error("name cannot be empty"),
		validation.RuneLength(1, r.MaxLength).Error("name is too long"),
	)
	return nameError(err, name)
}

func nameError(err error, name string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: ErrInvalidName, Message: err.Error(), Path: name}
}

// foldName is the key used for case-insensitive name comparison.
func foldName(name string) string {
	return strings.ToLower(name)
}
