// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acp-project/acp-go/pkg/acp/identity"
)

var rootCmd = &cobra.Command{
	Use:   "acp-agent",
	Short: "ACP Agent CLI - Agent Communication Protocol client",
	Long: `acp-agent drives one or more AIDs through the Agent Communication
Protocol SDK: identity creation, sign-in/sign-out, P2P messaging, and
group membership.`,
}

var baseDir string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "root directory for AID key/cert/session storage (default: $HOME/.acp-agent)")
}

func resolveBaseDir() (string, error) {
	if baseDir != "" {
		return baseDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve default base dir: %w", err)
	}
	return home + "/.acp-agent", nil
}

func newIdentityManager() (*identity.Manager, error) {
	dir, err := resolveBaseDir()
	if err != nil {
		return nil, err
	}
	return identity.New(dir), nil
}
