// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/llmqa/llmqa/internal/auth"
)

// Test seams for terminal input.
var (
	isTerminal   = func(fd int) bool { return term.IsTerminal(fd) }
	readPassword = term.ReadPassword
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	var hasherName string

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from the terminal or stdin",
		Long: `Read a password and print its hash in the format stored in the
users table. On a terminal the password is prompted for without echo;
otherwise the first line of stdin is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hasher, err := auth.NewHasher(hasherName)
			if err != nil {
				return err //nolint:wrapcheck // coded by auth
			}

			password, err := readSecret(cmd, os.Stdin)
			if err != nil {
				return err
			}

			hash, err := hasher.Hash(password)
			if err != nil {
				return err //nolint:wrapcheck // coded by auth
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err //nolint:wrapcheck // stdout write
		},
	}

	cmd.Flags().StringVar(&hasherName, "hasher", auth.HasherBcrypt, "hash algorithm (bcrypt or argon2id)")
	return cmd
}

// readSecret prompts on a terminal, otherwise reads the first line of in.
func readSecret(cmd *cobra.Command, in *os.File) (string, error) {
	fd := int(in.Fd()) //nolint:gosec // file descriptors fit in int
	if isTerminal(fd) {
		cmd.PrintErr("Password: ")
		raw, err := readPassword(fd)
		cmd.PrintErrln()
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return string(raw), nil
	}
	return readLine(cmd.InOrStdin())
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("PASSWORD_READ_FAILED").Errorf("no password provided")
	}
	return line, nil
}
