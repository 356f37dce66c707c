//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main holds the mage targets of the websql module.
//
//	mage build      Compile the websql binary to bin/
//	mage install    Copy the binary to GOPATH/bin
//	mage clean      Remove build artifacts
//	mage lint       Check formatting and run golangci-lint
//	mage test:all   Run every test
//	mage test:unit  Run tests in short mode
//	mage test:race  Run every test with the race detector
//	mage test:cover Write a coverage profile to bin/coverage.out
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "websql"
	binaryDir  = "bin"
	cmdDir     = "./cmd/websql"
)

// Build compiles the websql binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), filepath.Join(binaryDir, binaryName))
}

// Clean removes build artifacts and the default data directory.
func Clean() error {
	for _, dir := range []string{binaryDir, ".websql-db"} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return sh.RunV(binGo, "clean")
}
