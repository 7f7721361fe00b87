package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"costmanager/internal/storage"
)

// VersionInfo is the payload of the version command.
type VersionInfo struct {
	Database      string `json:"database"`
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the database schema version",
		Long:  "Open (and if needed create) the cost database and report its schema version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
				v, err := rt.Store.Version(cmd.Context())
				if err != nil {
					return err
				}
				info := VersionInfo{
					Database:      storage.DatabaseName,
					Path:          rt.Store.Path(),
					SchemaVersion: v,
				}
				return out.Success(fmt.Sprintf("%s schema version %d (%s)", info.Database, info.SchemaVersion, info.Path), info)
			})
		},
	}
}
