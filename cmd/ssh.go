package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
	"github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/ssh"
)

var (
	sshPort     int
	sshIdentity string
	sshBatch    bool
)

var sshCmd = &cobra.Command{
	Use:   "ssh [-- command...]",
	Short: "Log in to a guest started with run",
	Long: `Connects to the guest's forwarded SSH port as the session user.

The guest must be running (see run) and accept one of the configured
authorized keys. With --batch the command runs without a terminal and
its output is printed.`,
	RunE: runSSH,
}

func init() {
	sshCmd.Flags().IntVarP(&sshPort, "port", "p", 0, "Forwarded port (default machine.ssh_port)")
	sshCmd.Flags().StringVarP(&sshIdentity, "identity", "i", "", "Private key file")
	sshCmd.Flags().BoolVar(&sshBatch, "batch", false, "Run the command non-interactively and print its output")
	rootCmd.AddCommand(sshCmd)
}

// sshOptions returns the client options for the configured guest.
func sshOptions(port int) ssh.Options {
	return ssh.DefaultOptions(port).WithUser(app.Default.Config.Session.User)
}

// sshCommandLine returns the login command for a guest forwarded to port.
func sshCommandLine(port int) string {
	return sshOptions(port).CommandLine()
}

func runSSH(cmd *cobra.Command, args []string) error {
	port := app.Default.Config.Machine.SSHPort
	if cmd.Flags().Changed("port") {
		port = sshPort
	}
	opts := sshOptions(port)
	if sshIdentity != "" {
		opts = opts.WithIdentity(sshIdentity)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if sshBatch {
		if len(args) == 0 {
			return errors.ValidationError("--batch needs a command")
		}
		out, err := ssh.Run(ctx, app.Default.Exec, opts, args...)
		if err != nil {
			return errors.SSHError(fmt.Sprintf("ssh to port %d failed", port), err)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}

	return ssh.Interactive(ctx, app.Default.Exec, opts, args...)
}
