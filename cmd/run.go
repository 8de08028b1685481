package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/netbsd-imager/internal/app"
	"github.com/firefly-engineering/netbsd-imager/internal/emulator"
	"github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/port"
)

var (
	runPrint    bool
	runSnapshot bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the disk with the console on this terminal",
	Long: `Boots the raw disk in QEMU with the serial console attached to the
terminal and guest port 22 forwarded to machine.ssh_port.

With --snapshot writes are discarded when QEMU exits. Quit QEMU with
Ctrl-a x.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runPrint, "print", false, "Print the QEMU command instead of running it")
	runCmd.Flags().BoolVar(&runSnapshot, "snapshot", false, "Discard disk writes on exit")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	spec, err := builder().RunSpec(runSnapshot)
	if err != nil {
		return err
	}

	if runPrint {
		fmt.Fprintln(cmd.OutOrStdout(), emulator.CommandLine(spec))
		return nil
	}

	if p, err := port.Resolve(spec.SSHPort, port.DefaultSpan); err != nil {
		return errors.EmulatorFailed("port forward", err)
	} else if p != spec.SSHPort {
		logWarning("Port %d is in use; forwarding SSH on %d instead", spec.SSHPort, p)
		spec.SSHPort = p
	}
	logInfo("Log in with: %s", sshCommandLine(spec.SSHPort))

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err := emulator.RunInteractive(ctx, app.Default.Exec, spec); err != nil {
		return errors.EmulatorFailed("run", err)
	}
	return nil
}
