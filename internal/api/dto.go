package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/collate/internal/merge"
	"github.com/starford/collate/internal/selection"
	"github.com/starford/collate/internal/storage"
	"github.com/starford/collate/internal/workspace"
)

// addressRule rejects strings ParseAddress cannot read.
var addressRule = validation.By(func(v any) error {
	s, _ := v.(string)
	_, err := selection.ParseAddress(s)
	return err
})

// PathRequest is the request body for scanning a directory or importing a list.
type PathRequest struct {
	Path string `json:"path" example:"/home/me/project" validate:"required"`
}

// Validate implements validation.Validatable.
func (r PathRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// AddressRequest is the request body for toggling a node.
type AddressRequest struct {
	Address string `json:"address" example:"0/2" validate:"required"`
}

// Validate implements validation.Validatable.
func (r AddressRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Address, validation.Required, addressRule),
	)
}

// CheckRequest is the request body for setting a node's state.
type CheckRequest struct {
	Address string `json:"address" example:"0/2" validate:"required"`
	Checked *bool  `json:"checked" example:"true" validate:"required"`
}

// Validate implements validation.Validatable.
func (r CheckRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Address, validation.Required, addressRule),
		validation.Field(&r.Checked, validation.NotNil),
	)
}

// ExtensionRequest is the request body for selecting files by extension.
// An empty address targets the root; a file address targets its folder.
type ExtensionRequest struct {
	Address   string `json:"address,omitempty" example:"0"`
	Extension string `json:"extension" example:".go" validate:"required"`
	Recursive bool   `json:"recursive" example:"true"`
}

// Validate implements validation.Validatable.
func (r ExtensionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Address, addressRule),
		validation.Field(&r.Extension, validation.Required, validation.Length(1, 32)),
	)
}

// MergeRequest is the request body for starting a merge.
type MergeRequest struct {
	OutputDir string `json:"output_dir,omitempty" example:"/tmp/out"`
}

// StateResponse reports a node's state after a mutation.
type StateResponse struct {
	Address string               `json:"address" example:"0/2" validate:"required"`
	State   selection.CheckState `json:"state" swaggertype:"string" example:"checked" validate:"required"`
}

// CheckedResponse lists the checked files in tree order.
type CheckedResponse struct {
	Files []string `json:"files" validate:"required"`
	Count int      `json:"count" example:"3" validate:"required"`
}

// ExtensionsResponse lists the extensions found in a folder.
type ExtensionsResponse struct {
	Address    string   `json:"address" example:"0"`
	Extensions []string `json:"extensions" example:".go,.md" validate:"required"`
}

// MergeStartedResponse is returned when a merge was accepted.
type MergeStartedResponse struct {
	RunID uint64 `json:"run_id" example:"1" validate:"required"`
}

// CancelResponse reports whether a run was active when cancel was requested.
type CancelResponse struct {
	Cancelled bool `json:"cancelled" validate:"required"`
}

// OutputsResponse lists previously merged files.
type OutputsResponse struct {
	Outputs []storage.Entry `json:"outputs" validate:"required"`
}

// LoadReport is returned by scan and import (aliased from the domain layer).
type LoadReport = workspace.LoadReport

// MergeStatus is the merge coordinator state (aliased from the domain layer).
type MergeStatus = merge.Status

// TreeView is a snapshot of the selection tree (aliased from the domain layer).
type TreeView = selection.View
