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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acp-project/acp-go/pkg/acp/groupstore"
	"github.com/acp-project/acp-go/pkg/acp/supervisor"
)

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "Sign in and stay connected in the foreground",
	Long: `Loads an AID, brings its heartbeat and message channel online,
optionally sends one message and/or joins one group, then blocks until
interrupted (Ctrl-C), signing out cleanly on exit.`,
	RunE: runOnline,
}

var (
	onlineAID      string
	onlinePassword string
	onlineCA       string
	onlineAP       string
	onlineSendTo   string
	onlineMessage  string
	onlineJoin     string
)

func init() {
	rootCmd.AddCommand(onlineCmd)

	onlineCmd.Flags().StringVar(&onlineAID, "aid", "", "AID to bring online")
	onlineCmd.Flags().StringVar(&onlinePassword, "password", "", "password protecting the private key at rest")
	onlineCmd.Flags().StringVar(&onlineCA, "ca", "", "certificate authority base URL")
	onlineCmd.Flags().StringVar(&onlineAP, "ap", "", "access point base URL")
	onlineCmd.Flags().StringVar(&onlineSendTo, "send-to", "", "optional peer AID to open a P2P session with")
	onlineCmd.Flags().StringVar(&onlineMessage, "message", "", "optional message body to send to --send-to once connected")
	onlineCmd.Flags().StringVar(&onlineJoin, "join", "", "optional group id to join and sync once connected")

	onlineCmd.MarkFlagRequired("aid")
	onlineCmd.MarkFlagRequired("password")
	onlineCmd.MarkFlagRequired("ca")
	onlineCmd.MarkFlagRequired("ap")
}

func runOnline(cmd *cobra.Command, args []string) error {
	mgr, err := newIdentityManager()
	if err != nil {
		return err
	}

	id, err := mgr.LoadAID(onlineAID, onlinePassword)
	if err != nil {
		return fmt.Errorf("load AID: %w", err)
	}

	dir, err := resolveBaseDir()
	if err != nil {
		return err
	}
	store := groupstore.New(dir, id.AID)

	sup := supervisor.New(mgr, id, onlineCA, onlineAP, supervisor.WithGroupStore(store))

	ctx := context.Background()
	if err := sup.Online(ctx); err != nil {
		return fmt.Errorf("online: %w", err)
	}
	fmt.Printf("%s is online (state=%s)\n", id.AID, sup.CurrentState())

	if onlineSendTo != "" && onlineMessage != "" {
		sess, err := sup.SessionManager().CreateSession(ctx, []string{id.AID, onlineSendTo})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create session with %s failed: %v\n", onlineSendTo, err)
		} else if err := sup.SessionManager().SendMessage(ctx, sess.ID, []string{onlineMessage}, ""); err != nil {
			fmt.Fprintf(os.Stderr, "send message failed: %v\n", err)
		} else {
			fmt.Printf("sent message to %s in session %s\n", onlineSendTo, sess.ID)
		}
	}

	if onlineJoin != "" {
		if sup.GroupSync() == nil {
			fmt.Fprintln(os.Stderr, "group sync unavailable")
		} else if err := sup.GroupSync().JoinGroupSession(ctx, onlineJoin); err != nil {
			fmt.Fprintf(os.Stderr, "join group %s failed: %v\n", onlineJoin, err)
		} else {
			fmt.Printf("joined and synced group %s\n", onlineJoin)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("shutting down...")
	return sup.Offline(context.Background())
}
