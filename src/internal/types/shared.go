package types

import (
	"fmt"
	"strings"
)

// ClientConfig describes how to launch a language server
type ClientConfig struct {
	Command               string
	Args                  []string
	WorkingDir            string
	Env                   map[string]string
	InitializationOptions interface{} // Optional initialization options from config
}

// String renders the command line for logs and errors
func (c ClientConfig) String() string {
	if len(c.Args) == 0 {
		return c.Command
	}
	return fmt.Sprintf("%s %s", c.Command, strings.Join(c.Args, " "))
}

// Validate checks that the config names a command
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("server command cannot be empty")
	}
	return nil
}
