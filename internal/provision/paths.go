package provision

import "path/filepath"

// On-disk layout per server:
//
//	<servers>/<name>/start_<name>.sh
//	<servers>/<name>/ShooterGame/Saved/SavedArks/...      (save games, never regenerated)
//	<servers>/<name>/ShooterGame/Saved/Config/WindowsServer/GameUserSettings.ini
//	<servers>/<name>/ShooterGame/Saved/Config/WindowsServer/Game.ini
//
// Binaries are shared across the fleet under a single install directory.

func ServerDir(serversPath, name string) string {
	return filepath.Join(serversPath, name)
}

func SavedDir(serverDir string) string {
	return filepath.Join(serverDir, "ShooterGame", "Saved")
}

func ConfigDir(serverDir string) string {
	return filepath.Join(SavedDir(serverDir), "Config", "WindowsServer")
}

func ScriptPath(serversPath, name string) string {
	return filepath.Join(ServerDir(serversPath, name), scriptName(name))
}

func ServerExePath(binariesPath string) string {
	return filepath.Join(binariesPath, "ShooterGame", "Binaries", "Win64", serverExecutable)
}
