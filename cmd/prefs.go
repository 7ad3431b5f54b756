package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var prefsRaw bool

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage preferences in the encrypted local store",
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a value; valid JSON is kept as JSON, anything else as a string",
	Args:  cobra.ExactArgs(2),
	RunE:  runPrefsSet,
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored value",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrefsGet,
}

var prefsRmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Remove a stored value",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrefsRm,
}

func init() {
	prefsGetCmd.Flags().BoolVar(&prefsRaw, "raw", false, "Print the value as stored, without decrypting")
	prefsCmd.AddCommand(prefsSetCmd, prefsGetCmd, prefsRmCmd)
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	store, closeFn, err := openPrefs(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	var value any = args[1]
	if json.Valid([]byte(args[1])) {
		value = json.RawMessage(args[1])
	}
	if err := store.Put(cmd.Context(), args[0], value); err != nil {
		return runtimeError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", args[0])
	return nil
}

func runPrefsGet(cmd *cobra.Command, args []string) error {
	store, closeFn, err := openPrefs(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	if prefsRaw {
		raw, ok, err := store.Raw(cmd.Context(), args[0])
		if err != nil {
			return runtimeError(err)
		}
		if !ok {
			return usageErrorf("no value stored for %q", args[0])
		}
		fmt.Fprintln(out, raw)
		return nil
	}

	var value json.RawMessage
	ok, err := store.Get(cmd.Context(), args[0], &value)
	if err != nil {
		return runtimeError(err)
	}
	if !ok {
		return usageErrorf("no value stored for %q", args[0])
	}
	var pretty any
	if err := json.Unmarshal(value, &pretty); err != nil {
		return runtimeError(err)
	}
	data, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return runtimeError(err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func runPrefsRm(cmd *cobra.Command, args []string) error {
	store, closeFn, err := openPrefs(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	if err := store.Remove(cmd.Context(), args[0]); err != nil {
		return runtimeError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}
