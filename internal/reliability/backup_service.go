// Package reliability backs the ledger up to object storage and keeps the
// SQLite files healthy.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/database"
	"github.com/sanbist/papertrader/internal/version"
)

const (
	archivePrefix     = "papertrader-backup-"
	archiveSuffix     = ".tar.gz"
	archiveTimeLayout = "2006-01-02-150405"
	metadataFilename  = "backup-metadata.json"
	minBackupsToKeep  = 3
)

// BackupMetadata is written into every archive next to the database files
type BackupMetadata struct {
	Timestamp  time.Time          `json:"timestamp"`
	Format     string             `json:"format"`
	AppVersion string             `json:"app_version"`
	Databases  []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database file in an archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo is a backup found in the bucket
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService snapshots databases into a tar.gz archive and uploads it
type BackupService struct {
	store      ObjectStore
	databases  map[string]*database.DB
	prefix     string
	stagingDir string
	now        func() time.Time
	log        zerolog.Logger
}

// NewBackupService creates a new backup service. Archives are staged under
// stagingDir and stored under prefix in the bucket.
func NewBackupService(
	store ObjectStore,
	databases map[string]*database.DB,
	prefix string,
	stagingDir string,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:      store,
		databases:  databases,
		prefix:     strings.Trim(prefix, "/"),
		stagingDir: stagingDir,
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

func (s *BackupService) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *BackupService) databaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateAndUpload snapshots every database, archives the snapshots with a
// metadata file and uploads the archive
func (s *BackupService) CreateAndUpload(ctx context.Context) (BackupInfo, error) {
	s.log.Info().Msg("Starting backup")
	start := s.now()

	staging, err := os.MkdirTemp(s.stagingDir, "backup-staging-")
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	metadata := BackupMetadata{
		Timestamp:  start.UTC(),
		Format:     "1",
		AppVersion: version.Version,
	}
	files := make([]string, 0, len(s.databases)+1)

	for _, name := range s.databaseNames() {
		filename := name + ".db"
		dest := filepath.Join(staging, filename)

		s.log.Debug().Str("database", name).Msg("Snapshotting database")
		if err := s.databases[name].SnapshotTo(ctx, dest); err != nil {
			return BackupInfo{}, fmt.Errorf("failed to snapshot %s: %w", name, err)
		}

		info, err := os.Stat(dest)
		if err != nil {
			return BackupInfo{}, fmt.Errorf("failed to stat %s snapshot: %w", name, err)
		}
		checksum, err := fileChecksum(dest)
		if err != nil {
			return BackupInfo{}, fmt.Errorf("failed to checksum %s: %w", name, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      name,
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	if err := writeMetadata(filepath.Join(staging, metadataFilename), metadata); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, metadataFilename)

	archiveName := archivePrefix + start.UTC().Format(archiveTimeLayout) + archiveSuffix
	archivePath := filepath.Join(staging, archiveName)
	if err := createArchive(archivePath, staging, files); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	stat, err := archive.Stat()
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to stat archive: %w", err)
	}

	key := s.key(archiveName)
	if err := s.store.Upload(ctx, key, archive, stat.Size()); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", s.now().Sub(start)).
		Str("key", key).
		Int64("size_bytes", stat.Size()).
		Msg("Backup completed")

	return BackupInfo{Key: key, Timestamp: metadata.Timestamp, SizeBytes: stat.Size()}, nil
}

// ListBackups lists stored backups, newest first. Objects that do not look
// like backup archives are skipped.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, s.key(archivePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
		ts, err := time.Parse(archiveTimeLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup name")
			continue
		}

		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Rotate deletes all but the newest keep backups. At least three are always kept.
// Returns how many were deleted.
func (s *BackupService) Rotate(ctx context.Context, keep int) (int, error) {
	if keep < minBackupsToKeep {
		keep = minBackupsToKeep
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		s.log.Debug().Int("count", len(backups)).Msg("Too few backups to rotate")
		return 0, nil
	}

	deleted := 0
	for _, b := range backups[keep:] {
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("key", b.Key).Time("timestamp", b.Timestamp).Msg("Deleted old backup")
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return deleted, nil
}

func fileChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(filePath string, metadata BackupMetadata) error {
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, filenames []string) (err error) {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if cerr := archiveFile.Close(); err == nil {
			err = cerr
		}
	}()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
