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

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally stored AIDs",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	mgr, err := newIdentityManager()
	if err != nil {
		return err
	}

	aids, err := mgr.ListAIDs()
	if err != nil {
		return fmt.Errorf("list AIDs: %w", err)
	}

	if len(aids) == 0 {
		fmt.Println("no AIDs stored")
		return nil
	}
	for _, aid := range aids {
		fmt.Println(aid)
	}
	return nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete <aid>",
	Short: "Delete a locally stored AID",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	mgr, err := newIdentityManager()
	if err != nil {
		return err
	}

	if err := mgr.DeleteAID(args[0]); err != nil {
		return fmt.Errorf("delete AID: %w", err)
	}
	fmt.Printf("deleted AID %s\n", args[0])
	return nil
}
