package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"asactl/internal/domain"
)

const serverExecutable = "ArkAscendedServer.exe"

// launchOptions is everything the generated script embeds besides the
// ServerConfig itself.
type launchOptions struct {
	ExePath         string
	Mods            []string
	ClusterID       string
	ClusterDataPath string
}

// scriptName returns the platform-native script file name for a server.
func scriptName(serverName string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("start_%s.bat", serverName)
	}
	return fmt.Sprintf("start_%s.sh", serverName)
}

// buildCommandLine assembles the dedicated-server invocation. The first
// argument is the UE-style query string; everything else is dash flags.
func buildCommandLine(srv *domain.ServerConfig, opts launchOptions) string {
	query := []string{
		srv.Map,
		"listen",
		fmt.Sprintf("SessionName=%s", srv.Name),
		fmt.Sprintf("Port=%d", srv.GamePort),
		fmt.Sprintf("QueryPort=%d", srv.QueryPort),
		fmt.Sprintf("MaxPlayers=%d", srv.MaxPlayers),
		fmt.Sprintf("ServerAdminPassword=%s", srv.AdminPassword),
		"RCONEnabled=True",
		fmt.Sprintf("RCONPort=%d", srv.RconPort),
	}
	if srv.ServerPassword != "" {
		query = append(query, fmt.Sprintf("ServerPassword=%s", srv.ServerPassword))
	}

	args := []string{fmt.Sprintf("%q", strings.Join(query, "?"))}

	if len(opts.Mods) > 0 {
		args = append(args, fmt.Sprintf("-mods=%s", strings.Join(opts.Mods, ",")))
	}
	if srv.DisableBattlEye {
		args = append(args, "-NoBattlEye")
	}
	if opts.ClusterID != "" {
		args = append(args, fmt.Sprintf("-clusterid=%s", opts.ClusterID))
		args = append(args, fmt.Sprintf("-ClusterDirOverride=%q", opts.ClusterDataPath))
	}
	if srv.DynamicConfigURL != "" {
		args = append(args, fmt.Sprintf("-customdynamicconfigurl=%q", srv.DynamicConfigURL))
	}
	args = append(args, "-servergamelog")

	return fmt.Sprintf("%q %s", opts.ExePath, strings.Join(args, " "))
}

// renderScript produces the full script body for the current platform.
func renderScript(srv *domain.ServerConfig, opts launchOptions) string {
	cmdLine := buildCommandLine(srv, opts)

	if runtime.GOOS == "windows" {
		return strings.Join([]string{
			"@echo off",
			"rem Generated by asactl. Do not edit; regenerated from the server config.",
			cmdLine,
			"",
		}, "\r\n")
	}

	return strings.Join([]string{
		"#!/bin/sh",
		"# Generated by asactl. Do not edit; regenerated from the server config.",
		"exec " + cmdLine,
		"",
	}, "\n")
}

// writeScript writes the launch script into serverDir. It only ever touches
// the script file itself, never the save-game tree next to it.
func writeScript(serverDir string, srv *domain.ServerConfig, opts launchOptions) (string, error) {
	path := filepath.Join(serverDir, scriptName(srv.Name))
	if err := os.WriteFile(path, []byte(renderScript(srv, opts)), 0755); err != nil {
		return "", fmt.Errorf("could not write launch script: %w", err)
	}
	return path, nil
}
