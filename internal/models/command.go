package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidCommand marks a BatchCommand rejected before it reaches the queue.
var ErrInvalidCommand = errors.New("invalid batch command")

// Validate checks the fields every batch needs to reach Shotgrid.
func (c BatchCommand) Validate() error {
	if strings.TrimSpace(c.ProjectName) == "" {
		return fmt.Errorf("%w: project_name is required", ErrInvalidCommand)
	}
	if c.ProjectID <= 0 {
		return fmt.Errorf("%w: shotgrid_project_id must be positive", ErrInvalidCommand)
	}
	if err := c.Credentials.Validate(); err != nil {
		return err
	}
	return nil
}

func (c ShotgridCredentials) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: shotgrid_url %q should be a valid url", ErrInvalidCommand, c.URL)
	}
	if strings.TrimSpace(c.ScriptName) == "" {
		return fmt.Errorf("%w: script_name is required", ErrInvalidCommand)
	}
	if strings.TrimSpace(c.ScriptKey) == "" {
		return fmt.Errorf("%w: script_key is required", ErrInvalidCommand)
	}
	return nil
}

// BatchConfig is the boundary payload for batch and schedule requests.
type BatchConfig struct {
	ShotgridURL       string        `json:"shotgrid_url"`
	ShotgridProjectID int64         `json:"shotgrid_project_id"`
	ScriptName        string        `json:"script_name"`
	ScriptKey         string        `json:"script_key"`
	Overwrite         bool          `json:"overwrite"`
	FieldsMapping     FieldsMapping `json:"fields_mapping,omitempty"`
}

// ToCommand binds the payload to a destination project name.
func (b BatchConfig) ToCommand(projectName string) BatchCommand {
	return BatchCommand{
		ProjectID:   b.ShotgridProjectID,
		ProjectName: projectName,
		Overwrite:   b.Overwrite,
		Credentials: ShotgridCredentials{
			URL:        b.ShotgridURL,
			ScriptName: b.ScriptName,
			ScriptKey:  b.ScriptKey,
		},
		FieldsMapping: b.FieldsMapping,
	}
}
