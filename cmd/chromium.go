package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cdpproxy/internal"
	"cdpproxy/internal/install"
)

var chromiumCmd = &cobra.Command{
	Use:   "chromium",
	Short: "Manage the cached Chromium for Testing build",
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and install Chromium for Testing",
	RunE:  runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove an installed Chromium build",
	RunE:  runUninstall,
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade to the latest Chromium build",
	RunE:  runUpgrade,
}

var (
	installChannel string
	installPath    string
	uninstallVer   string
	uninstallPath  string
	upgradeChannel string
	upgradePath    string
	upgradeClean   bool
)

func init() {
	installCmd.Flags().StringVar(&installChannel, "channel", "Stable", "Release channel (Stable|Beta|Dev|Canary)")
	installCmd.Flags().StringVar(&installPath, "path", "", "Custom install location")
	uninstallCmd.Flags().StringVar(&uninstallVer, "version", "", "Specific version to remove (default: all)")
	uninstallCmd.Flags().StringVar(&uninstallPath, "path", "", "Custom install location")
	upgradeCmd.Flags().StringVar(&upgradeChannel, "channel", "Stable", "Release channel (Stable|Beta|Dev|Canary)")
	upgradeCmd.Flags().StringVar(&upgradePath, "path", "", "Custom install location")
	upgradeCmd.Flags().BoolVar(&upgradeClean, "clean", false, "Remove the previously current version after upgrade")
	chromiumCmd.AddCommand(installCmd, uninstallCmd, upgradeCmd)
	rootCmd.AddCommand(chromiumCmd)
}

func runInstall(_ *cobra.Command, _ []string) error {
	base := installPath
	if base == "" {
		base = internal.ChromiumDir
	}
	binary, err := install.Install(installChannel, base)
	if err != nil {
		return err
	}
	fmt.Println(binary)
	return nil
}

func runUninstall(_ *cobra.Command, _ []string) error {
	base := uninstallPath
	if base == "" {
		base = internal.ChromiumDir
	}
	if err := install.Uninstall(uninstallVer, base); err != nil {
		return err
	}
	if uninstallVer != "" {
		fmt.Println("removed", uninstallVer)
	} else {
		fmt.Println("removed all")
	}
	return nil
}

func runUpgrade(_ *cobra.Command, _ []string) error {
	base := upgradePath
	if base == "" {
		base = internal.ChromiumDir
	}
	binary, err := install.Upgrade(upgradeChannel, base, upgradeClean)
	if err != nil {
		return err
	}
	if binary == "" {
		fmt.Println("already up to date")
		return nil
	}
	fmt.Println(binary)
	return nil
}
