package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/centrifugal/subclient/internal/config"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

func DefaultEnv() *cobra.Command {
	var baseConfigFile string
	var nonZeroOnly bool
	var defaultEnvCmd = &cobra.Command{
		Use:   "defaultenv",
		Short: "Generate full environment var list with defaults",
		Long:  `Generate full Subclient environment var list with defaults`,
		Run: func(cmd *cobra.Command, args []string) {
			defaultEnv(baseConfigFile, nonZeroOnly)
		},
	}
	defaultEnvCmd.Flags().StringVarP(&baseConfigFile, "base", "b", "", "path to the base config file to use")
	defaultEnvCmd.Flags().BoolVarP(&nonZeroOnly, "non-zero-only", "", false, "only output environment variables with non zero values")
	return defaultEnvCmd
}

func defaultEnv(baseFile string, nonZeroOnly bool) {
	conf, meta, err := config.GetConfig(nil, baseFile)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	lines, err := envLines(conf, meta.KnownEnvVars, nonZeroOnly)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

// envLines returns sorted NAME=value lines for known environment variables.
// Values are taken from JSON form of configuration where key paths match
// configuration keys.
func envLines(conf config.Config, knownEnvVars map[string]string, nonZeroOnly bool) ([]string, error) {
	data, err := json.Marshal(conf)
	if err != nil {
		return nil, err
	}
	envKeys := make([]string, 0, len(knownEnvVars))
	for env := range knownEnvVars {
		envKeys = append(envKeys, env)
	}
	sort.Strings(envKeys)

	lines := make([]string, 0, len(envKeys))
	for _, env := range envKeys {
		res := gjson.GetBytes(data, knownEnvVars[env])
		if nonZeroOnly && isZero(res) {
			continue
		}
		lines = append(lines, env+"="+envValue(res))
	}
	return lines, nil
}

func isZero(res gjson.Result) bool {
	switch res.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.String:
		return res.Str == "" || res.Str == "0s"
	case gjson.Number:
		return res.Num == 0
	case gjson.JSON:
		if res.IsArray() {
			return len(res.Array()) == 0
		}
		return len(res.Map()) == 0
	}
	return false
}

func envValue(res gjson.Result) string {
	switch {
	case res.IsArray():
		items := res.Array()
		values := make([]string, len(items))
		for i, item := range items {
			values[i] = item.String()
		}
		return strconv.Quote(strings.Join(values, ","))
	case res.IsObject():
		return strconv.Quote(res.Raw)
	case res.Type == gjson.String:
		return strconv.Quote(res.Str)
	case res.Type == gjson.Null:
		return `""`
	default:
		return res.Raw
	}
}
