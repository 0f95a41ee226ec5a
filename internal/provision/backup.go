package provision

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"asactl/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const manifestName = "backup.json"

// BackupManifest is embedded in every archive. Servers records the exact
// member-name set; cluster restore refuses a target whose member set differs.
type BackupManifest struct {
	ID        string    `json:"id"`
	Cluster   string    `json:"cluster,omitempty"`
	Servers   []string  `json:"servers"`
	CreatedAt time.Time `json:"created_at"`
}

type BackupInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// BackupManager archives and restores the Saved subtree (save games plus
// config) of servers and clusters.
type BackupManager struct {
	ServersPath string
	BackupsPath string

	Store   domain.Repository
	stopper Stopper
	logger  zerolog.Logger
}

func NewBackupManager(logger zerolog.Logger, store domain.Repository, stopper Stopper, serversPath, backupsPath string) *BackupManager {
	return &BackupManager{
		ServersPath: serversPath,
		BackupsPath: backupsPath,
		Store:       store,
		stopper:     stopper,
		logger:      logger.With().Str("component", "backup").Logger(),
	}
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, " ", "-")
	reg := regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	sanitized := reg.ReplaceAllString(name, "")
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}
	return sanitized
}

// BackupServer archives one server's Saved subtree.
func (m *BackupManager) BackupServer(serverName string, sink domain.ProgressSink) (string, error) {
	srv, err := m.Store.GetServerByName(serverName)
	if err != nil {
		return "", err
	}
	if srv == nil {
		return "", fmt.Errorf("server %q not found", serverName)
	}

	manifest := BackupManifest{
		ID:        uuid.New().String(),
		Servers:   []string{serverName},
		CreatedAt: time.Now(),
	}
	return m.writeArchive(sanitizeFileName(serverName), manifest, sink)
}

// BackupCluster archives every member's Saved subtree into one archive.
func (m *BackupManager) BackupCluster(clusterName string, sink domain.ProgressSink) (string, error) {
	cluster, err := m.Store.GetClusterByName(clusterName)
	if err != nil {
		return "", err
	}
	if cluster == nil {
		return "", fmt.Errorf("cluster %q not found", clusterName)
	}

	members, err := m.Store.ListClusterMembers(clusterName)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "", fmt.Errorf("cluster %q has no members", clusterName)
	}

	names := make([]string, len(members))
	for i := range members {
		names[i] = members[i].Name
	}
	sort.Strings(names)

	manifest := BackupManifest{
		ID:        uuid.New().String(),
		Cluster:   clusterName,
		Servers:   names,
		CreatedAt: time.Now(),
	}
	return m.writeArchive(sanitizeFileName(clusterName), manifest, sink)
}

// writeArchive zips the Saved subtree of each manifest server, prefixed by
// server name, then the manifest itself. Written to a .temp file first so a
// failed backup never masquerades as a complete one.
func (m *BackupManager) writeArchive(baseName string, manifest BackupManifest, sink domain.ProgressSink) (string, error) {
	if sink == nil {
		sink = domain.NopSink
	}

	if err := os.MkdirAll(m.BackupsPath, 0755); err != nil {
		return "", fmt.Errorf("could not create backups directory: %w", err)
	}

	timestamp := manifest.CreatedAt.Format("20060102-150405")
	finalPath := filepath.Join(m.BackupsPath, fmt.Sprintf("%s-%s.zip", baseName, timestamp))
	tempPath := finalPath + ".temp"

	out, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("could not create backup file: %w", err)
	}
	zw := zip.NewWriter(out)

	archiveErr := func() error {
		for i, name := range manifest.Servers {
			sink(fmt.Sprintf("archiving %s", name), float64(i)/float64(len(manifest.Servers))*90)

			saved := SavedDir(ServerDir(m.ServersPath, name))
			if _, err := os.Stat(saved); os.IsNotExist(err) {
				return fmt.Errorf("server %q has no saved directory at %s", name, saved)
			}
			if err := addTree(zw, saved, name); err != nil {
				return fmt.Errorf("error archiving %s: %w", name, err)
			}
		}

		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return err
		}
		w, err := zw.Create(manifestName)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}()

	zipErr := zw.Close()
	fileErr := out.Close()
	if archiveErr != nil || zipErr != nil || fileErr != nil {
		os.Remove(tempPath)
		if archiveErr != nil {
			return "", archiveErr
		}
		return "", fmt.Errorf("error closing backup: %v, %v", zipErr, fileErr)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", fmt.Errorf("error renaming temp file: %w", err)
	}

	sink("backup complete", 100)
	m.logger.Info().Str("backup", finalPath).Msg("backup written")
	return finalPath, nil
}

func addTree(zw *zip.Writer, root, prefix string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = prefix + "/" + filepath.ToSlash(relPath)

		if info.IsDir() {
			header.Name += "/"
		} else {
			header.Method = zip.Deflate
		}

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(w, file)
		return err
	})
}

// ReadManifest extracts the manifest from an archive without unpacking it.
func (m *BackupManager) ReadManifest(backupName string) (*BackupManifest, error) {
	if strings.Contains(backupName, "..") {
		return nil, fmt.Errorf("invalid backup name")
	}

	r, err := zip.OpenReader(filepath.Join(m.BackupsPath, backupName))
	if err != nil {
		return nil, fmt.Errorf("could not open backup: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != manifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		var manifest BackupManifest
		if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
			return nil, fmt.Errorf("could not parse backup manifest: %w", err)
		}
		return &manifest, nil
	}

	return nil, fmt.Errorf("backup %q has no manifest", backupName)
}

// RestoreServer restores a single-server backup into the named server, which
// must exist and be stopped.
func (m *BackupManager) RestoreServer(backupName, serverName string, sink domain.ProgressSink) error {
	manifest, err := m.ReadManifest(backupName)
	if err != nil {
		return err
	}
	if len(manifest.Servers) != 1 {
		return fmt.Errorf("backup %q is a cluster backup; use cluster restore", backupName)
	}

	return m.restoreInto(backupName, manifest.Servers[0], serverName, sink)
}

// RestoreCluster restores a cluster backup. The backup's member-name set
// must exactly match the target cluster's member-name set; anything else is
// rejected rather than restored partially.
func (m *BackupManager) RestoreCluster(backupName, clusterName string, sink domain.ProgressSink) error {
	if sink == nil {
		sink = domain.NopSink
	}

	manifest, err := m.ReadManifest(backupName)
	if err != nil {
		return err
	}
	if manifest.Cluster == "" {
		return fmt.Errorf("backup %q is not a cluster backup", backupName)
	}

	members, err := m.Store.ListClusterMembers(clusterName)
	if err != nil {
		return err
	}

	targetNames := make([]string, len(members))
	for i := range members {
		targetNames[i] = members[i].Name
	}
	sort.Strings(targetNames)

	backupNames := append([]string(nil), manifest.Servers...)
	sort.Strings(backupNames)

	if !equalStrings(backupNames, targetNames) {
		return fmt.Errorf("backup members %v do not match cluster %q members %v",
			backupNames, clusterName, targetNames)
	}

	for i, name := range backupNames {
		sink(fmt.Sprintf("restoring %s", name), float64(i)/float64(len(backupNames))*100)
		if err := m.restoreInto(backupName, name, name, sink); err != nil {
			return err
		}
	}

	sink("restore complete", 100)
	return nil
}

func (m *BackupManager) restoreInto(backupName, archivePrefix, serverName string, sink domain.ProgressSink) error {
	srv, err := m.Store.GetServerByName(serverName)
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("server %q not found", serverName)
	}

	if m.stopper != nil {
		running, err := m.stopper.IsRunning(serverName)
		if err != nil {
			return err
		}
		if running {
			return fmt.Errorf("server %q must be stopped before restore", serverName)
		}
	}

	dest := SavedDir(ServerDir(m.ServersPath, serverName))
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	return unzipPrefix(filepath.Join(m.BackupsPath, backupName), archivePrefix, dest)
}

// unzipPrefix extracts entries under prefix/ from the archive into dest.
func unzipPrefix(src, prefix, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	prefix = prefix + "/"
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}

		fpath := filepath.Join(dest, filepath.FromSlash(strings.TrimPrefix(f.Name, prefix)))
		if !strings.HasPrefix(fpath, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("%s: illegal file path", fpath)
		}

		if f.FileInfo().IsDir() {
			os.MkdirAll(fpath, os.ModePerm)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}

		_, err = io.Copy(outFile, rc)
		outFile.Close()
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *BackupManager) ListBackups() ([]BackupInfo, error) {
	files, err := os.ReadDir(m.BackupsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read backups directory: %w", err)
	}

	var backups []BackupInfo
	for _, file := range files {
		if file.IsDir() || strings.HasSuffix(file.Name(), ".temp") {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{Name: file.Name(), Size: info.Size()})
	}
	return backups, nil
}

func (m *BackupManager) DeleteBackup(name string) error {
	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid backup name")
	}
	backupPath := filepath.Join(m.BackupsPath, name)
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup not found")
	}
	return os.Remove(backupPath)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
