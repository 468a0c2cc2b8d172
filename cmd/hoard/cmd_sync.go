package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hoard/pkg/remote"
	"github.com/odvcencio/hoard/pkg/syncplan"
)

// newSyncCmd builds the "sync <url>" subcommand. url is either
// "file://<path>" for a sibling repository on the same machine or
// "ssh://user@host:path" for one reached over a hoard _server-mode
// subprocess. Grounded on commands.py's sync command and
// remote.py's open()/execute_sync() dispatch.
func newSyncCmd() *cobra.Command {
	var preferLocal bool
	var preferRemote bool

	c := &cobra.Command{
		Use:   "sync <url>",
		Short: "Synchronize tracked files and history with another repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *openedRepo) error {
				url := args[0]

				self := remote.NewLocalFS(r.fs, r.root, r.settings.MetadataDir, r.settings.BlockSizeBytes, r.engine.DB)

				peer, err := openPeerRemote(url, r.settings.SSHCommand)
				if err != nil {
					return err
				}
				if err := peer.Open(url); err != nil {
					return fmt.Errorf("sync: open %q: %w", url, err)
				}
				defer peer.Close()

				if resolver := conflictResolverFor(preferLocal, preferRemote); resolver != nil {
					self.SetConflictResolver(resolver)
				}

				if err := self.ExecuteSync(peer); err != nil {
					return fmt.Errorf("sync: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "synced with %s\n", url)
				return nil
			})
		},
	}
	c.Flags().BoolVar(&preferLocal, "prefer-local", false, "resolve conflicts by keeping the local version")
	c.Flags().BoolVar(&preferRemote, "prefer-remote", false, "resolve conflicts by keeping the remote version")
	return c
}

// openPeerRemote constructs the Remote implementation matching url's
// scheme, unopened.
func openPeerRemote(url, sshCommand string) (remote.Remote, error) {
	scheme, err := remote.ParseScheme(url)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "file":
		return remote.NewLocalFS(afero.NewOsFs(), "", "", 0, nil), nil
	case "ssh":
		return remote.NewSSHRemote(sshCommand), nil
	default:
		return nil, fmt.Errorf("sync: unsupported url scheme %q", scheme)
	}
}

// conflictResolverFor maps the --prefer-local/--prefer-remote flags
// onto a syncplan.ConflictResolver (--prefer-local wins if both are
// set), or nil to leave LocalFS's default (syncplan.PreferNewest) in
// place.
func conflictResolverFor(preferLocal, preferRemote bool) syncplan.ConflictResolver {
	switch {
	case preferLocal:
		return syncplan.PreferLocal{}
	case preferRemote:
		return syncplan.PreferRemote{}
	default:
		return nil
	}
}
