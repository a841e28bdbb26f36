package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stacksnap/stacksnap/internal/compose"
	"github.com/stacksnap/stacksnap/internal/crypto"
	"github.com/stacksnap/stacksnap/internal/docker"
	"github.com/stacksnap/stacksnap/internal/snapshot"
	"github.com/stacksnap/stacksnap/internal/storage"
	"github.com/stacksnap/stacksnap/pkg/version"
)

// Global variables for CLI flags
var (
	backupDir      string
	verbose        bool
	quiet          bool
	dryRun         bool
	force          bool
	sourceDir      string
	descriptorPath string
	deploymentName string
	versionFlag    string
	store          bool
	// Storage flags
	storageType  string
	gcsBucket    string
	gcsProject   string
	gcsCredsFile string
	s3Bucket     string
	s3Region     string
	s3Endpoint   string
	s3AccessKey  string
	s3SecretKey  string
	// Encryption flags
	encrypt  bool
	password string
)

func buildStorageConfig() (*storage.Config, error) {
	config := &storage.Config{
		Type: storageType,
	}

	switch storageType {
	case "local":
		config.Local = &storage.LocalConfig{
			BasePath: backupDir,
		}
	case "gcs":
		if gcsBucket == "" {
			return nil, fmt.Errorf("GCS bucket is required when using GCS storage")
		}
		config.GCS = &storage.GCSConfig{
			Bucket:      gcsBucket,
			ProjectID:   gcsProject,
			Credentials: gcsCredsFile,
		}
	case "s3":
		if s3Bucket == "" {
			return nil, fmt.Errorf("S3 bucket is required when using S3 storage")
		}
		config.S3 = &storage.S3Config{
			Bucket:    s3Bucket,
			Region:    s3Region,
			Endpoint:  s3Endpoint,
			AccessKey: s3AccessKey,
			SecretKey: s3SecretKey,
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}

	return config, nil
}

func openLibrary(ctx context.Context) (*storage.Library, error) {
	storageConfig, err := buildStorageConfig()
	if err != nil {
		return nil, err
	}
	backend, err := storage.NewBackend(ctx, storageConfig)
	if err != nil {
		return nil, err
	}
	return storage.NewLibrary(backend), nil
}

func main() {
	var rootCmd = &cobra.Command{
		Use:     "stacksnap",
		Short:   "Deployment snapshot tool - backup and restore compose deployments",
		Long:    "stacksnap captures a compose-managed deployment (images, named volumes, configuration) into one portable archive and rebuilds it on any Docker host",
		Version: version.Version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", "./backups", "Directory to store archives (for local storage)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet output")

	// Storage backend flags
	rootCmd.PersistentFlags().StringVar(&storageType, "storage", "local", "Storage backend type (local, gcs, s3)")

	// GCS flags
	rootCmd.PersistentFlags().StringVar(&gcsBucket, "gcs-bucket", "", "GCS bucket name")
	rootCmd.PersistentFlags().StringVar(&gcsProject, "gcs-project", "", "GCS project ID")
	rootCmd.PersistentFlags().StringVar(&gcsCredsFile, "gcs-creds", "", "Path to GCS credentials file")

	// S3 flags
	rootCmd.PersistentFlags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().StringVar(&s3Region, "s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3 endpoint (for S3-compatible services)")
	rootCmd.PersistentFlags().StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	rootCmd.PersistentFlags().StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")

	// Add commands
	rootCmd.AddCommand(createBackupCommand())
	rootCmd.AddCommand(createRestoreCommand())
	rootCmd.AddCommand(createListCommand())
	rootCmd.AddCommand(createInfoCommand())
	rootCmd.AddCommand(createVersionsCommand())
	rootCmd.AddCommand(createDeleteCommand())
	rootCmd.AddCommand(createVolumesCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func createBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [output-file]",
		Short: "Snapshot a deployment into one archive",
		Long:  "Export the deployment's images, named volumes, and configuration tree into a single self-describing archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			var outputPath string
			if len(args) > 0 {
				outputPath = args[0]
			}
			result, err := runBackup(ctx, outputPath)
			if err != nil {
				return err
			}

			if !quiet {
				fmt.Printf("✅ Snapshot complete: %s (%.1f MB, %d image(s), %d volume(s))\n",
					result.ArchivePath, float64(result.Size)/(1024*1024), result.Images, result.Volumes)
				for _, w := range result.Warnings {
					fmt.Printf("⚠️  %s\n", w)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceDir, "dir", "d", ".", "Deployment directory to snapshot")
	cmd.Flags().StringVarP(&descriptorPath, "file", "f", "", "Deployment descriptor (default: auto-detect in --dir)")
	cmd.Flags().StringVarP(&deploymentName, "name", "n", "", "Deployment name (default: base name of --dir)")
	cmd.Flags().BoolVar(&store, "store", false, "Upload the archive to the configured storage backend")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Encrypt the archive with AES-256")
	cmd.Flags().StringVar(&password, "password", "", "Password for encryption (will prompt if not provided)")

	return cmd
}

func runBackup(ctx context.Context, outputPath string) (*snapshot.BackupResult, error) {
	absSource, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve deployment directory: %w", err)
	}

	descriptor := descriptorPath
	if descriptor == "" {
		descriptor, err = compose.FindDescriptor(absSource)
		if err != nil {
			return nil, err
		}
	}

	file, err := compose.Load(descriptor)
	if err != nil {
		return nil, err
	}
	inv := file.Inventory()

	deployment := deploymentName
	if deployment == "" {
		deployment = filepath.Base(absSource)
	}

	warnings := []snapshot.Warning{}
	if inv.Empty() && !quiet {
		fmt.Println("⚠️  Descriptor references no images or volumes; archiving configuration only")
	}

	client, err := docker.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", snapshot.ErrEnvironmentUnavailable, err)
	}
	client.SetVerbose(verbose && !quiet)

	b, err := snapshot.NewBackup(deployment, absSource, descriptor, inv)
	if err != nil {
		return nil, err
	}
	defer b.Cleanup()

	if !quiet {
		fmt.Printf("📸 Snapshotting '%s' (%d image(s), %d volume(s))\n",
			deployment, len(inv.Images), len(inv.Volumes))
	}

	archiver := snapshot.NewArchiver(client, client, verbose && !quiet)
	archiver.ExportImages(ctx, b)
	archiver.ExportVolumes(ctx, b)
	if err := archiver.CopyConfig(b); err != nil {
		return nil, err
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("%s_backup_%s.tar.gz", deployment, time.Now().Format("20060102-150405"))
	}

	size, err := snapshot.NewPackager(verbose && !quiet, quiet).Package(b, outputPath)
	if err != nil {
		return nil, err
	}

	if encrypt || password != "" {
		pass := password
		if pass == "" {
			pass = promptPassword("Enter encryption password: ", true)
			if pass == "" {
				return nil, fmt.Errorf("encryption password is required")
			}
		}
		encPath := outputPath + ".enc"
		if err := crypto.EncryptFile(outputPath, encPath, pass); err != nil {
			return nil, err
		}
		if err := os.Remove(outputPath); err != nil {
			fmt.Printf("Warning: failed to remove plaintext archive: %v\n", err)
		}
		if err := os.Rename(encPath, outputPath); err != nil {
			return nil, fmt.Errorf("failed to finalize encrypted archive: %w", err)
		}
		if stat, err := os.Stat(outputPath); err == nil {
			size = stat.Size()
		}
		if verbose && !quiet {
			fmt.Println("🔐 Archive encrypted")
		}
	}

	if store {
		if err := storeArchive(ctx, deployment, outputPath, size, inv); err != nil {
			return nil, err
		}
	}

	warnings = append(warnings, b.Warnings...)
	return &snapshot.BackupResult{
		ArchivePath: outputPath,
		Size:        size,
		Images:      len(inv.Images),
		Volumes:     len(inv.Volumes),
		Warnings:    warnings,
	}, nil
}

func storeArchive(ctx context.Context, deployment, archivePath string, size int64, inv compose.Inventory) error {
	lib, err := openLibrary(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(archivePath) // #nosec G304 - archive written by this run
	if err != nil {
		return fmt.Errorf("failed to open archive for upload: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Printf("Warning: failed to close archive: %v\n", err)
		}
	}()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	id, err := lib.Save(ctx, deployment, storage.ArchiveMetadata{
		Size:        size,
		CreatedAt:   time.Now(),
		CreatedBy:   hostname,
		ImageCount:  len(inv.Images),
		VolumeCount: len(inv.Volumes),
		Encrypted:   encrypt || password != "",
	}, f)
	if err != nil {
		return fmt.Errorf("failed to store archive: %w", err)
	}

	if !quiet {
		fmt.Printf("📤 Stored as %s\n", id)
	}
	return nil
}

func createRestoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <archive-or-deployment> [target-dir]",
		Short: "Rebuild a deployment from a snapshot archive",
		Long:  "Load images, recreate volumes, lay down configuration, and start the deployment from a snapshot archive or a stored deployment name",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			archivePath, cleanup, err := resolveArchive(ctx, args[0])
			if cleanup != nil {
				defer cleanup()
			}
			if err != nil {
				return err
			}

			// Decrypt before anything else touches the archive.
			encrypted, err := crypto.IsEncryptedFile(archivePath)
			if err != nil {
				return err
			}
			if encrypted {
				pass := password
				if pass == "" {
					pass = promptPassword("Enter decryption password: ", false)
					if pass == "" {
						return fmt.Errorf("decryption password is required")
					}
				}
				plainPath := filepath.Join(os.TempDir(), fmt.Sprintf("stacksnap-dec-%d.tar.gz", os.Getpid()))
				if err := crypto.DecryptFile(archivePath, plainPath, pass); err != nil {
					return err
				}
				defer func() {
					if err := os.Remove(plainPath); err != nil {
						fmt.Printf("Warning: failed to remove decrypted archive: %v\n", err)
					}
				}()
				archivePath = plainPath
				if verbose && !quiet {
					fmt.Println("🔓 Archive decrypted")
				}
			}

			targetDir := "."
			if len(args) > 1 {
				targetDir = args[1]
			}

			if dryRun {
				return printDryRun(archivePath, targetDir)
			}

			client, err := docker.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("%w: %v", snapshot.ErrEnvironmentUnavailable, err)
			}
			client.SetVerbose(verbose && !quiet)
			controller := docker.NewCompose(client, verbose && !quiet)

			restorer := snapshot.NewRestorer(client, client, controller, verbose && !quiet)
			restorer.SetQuiet(quiet)

			res, err := restorer.Restore(ctx, archivePath, targetDir)
			if err != nil {
				return err
			}

			if !quiet && len(res.Warnings) > 0 {
				fmt.Printf("Completed with %d warning(s):\n", len(res.Warnings))
				for _, w := range res.Warnings {
					fmt.Printf("⚠️  %s\n", w)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&versionFlag, "version", "", "Specific stored version to restore (format: YYYYMMDD-HHMMSS)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be restored without making changes")
	cmd.Flags().StringVar(&password, "password", "", "Password for decryption (will prompt if encrypted and not provided)")

	return cmd
}

// resolveArchive turns the restore argument into a local archive path. A
// path that exists on disk wins; anything else is treated as a stored
// deployment reference and fetched from the backend.
func resolveArchive(ctx context.Context, ref string) (string, func(), error) {
	if _, err := os.Stat(ref); err == nil {
		return ref, nil, nil
	}

	lib, err := openLibrary(ctx)
	if err != nil {
		return "", nil, err
	}

	if versionFlag != "" {
		ref = fmt.Sprintf("%s@%s", ref, versionFlag)
	}
	archive, err := lib.Get(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if closer, ok := archive.DataReader.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				fmt.Printf("Warning: failed to close archive reader: %v\n", err)
			}
		}
	}()

	tmp, err := os.CreateTemp("", "stacksnap-fetch-*.tar.gz")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil {
			fmt.Printf("Warning: failed to remove fetched archive: %v\n", err)
		}
	}

	var src = archive.DataReader
	if !quiet && archive.Metadata.Size > 0 {
		pr := snapshot.NewProgressReader(src, archive.Metadata.Size, "📥 Fetching archive")
		defer func() {
			_ = pr.Close()
		}()
		src = pr
	}

	if _, err := tmp.ReadFrom(src); err != nil {
		if closeErr := tmp.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close temp file: %v\n", closeErr)
		}
		return "", cleanup, fmt.Errorf("failed to fetch archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", cleanup, fmt.Errorf("failed to finalize fetched archive: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

func printDryRun(archivePath, targetDir string) error {
	info, err := snapshot.Inspect(archivePath)
	if err != nil {
		return err
	}

	fmt.Printf("🎯 Would restore '%s' into %s\n", info.Manifest.Deployment, targetDir)
	fmt.Printf("   Taken: %s on %s\n",
		info.Manifest.BackupDate.Format("2006-01-02 15:04:05"), info.Manifest.CreatedBy)
	fmt.Printf("   Images (%d):\n", len(info.Images))
	for _, ref := range info.Images {
		fmt.Printf("     - %s\n", ref)
	}
	fmt.Printf("   Volumes (%d):\n", len(info.Volumes))
	for _, name := range info.Volumes {
		fmt.Printf("     - %s\n", name)
	}
	fmt.Printf("   Config files (%d)\n", len(info.Config))
	fmt.Println("\n✋ Dry run - no changes made")
	return nil
}

func createListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored deployment snapshots",
		Long:  "List all deployment snapshots in the configured storage backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			lib, err := openLibrary(ctx)
			if err != nil {
				return err
			}

			deployments, err := lib.List(ctx)
			if err != nil {
				return err
			}
			if len(deployments) == 0 {
				fmt.Println("No snapshots stored")
				return nil
			}

			fmt.Printf("%-24s %-18s %10s %9s %8s %8s\n",
				"DEPLOYMENT", "LATEST", "SIZE", "VERSIONS", "IMAGES", "VOLUMES")
			for _, d := range deployments {
				fmt.Printf("%-24s %-18s %9.1fM %9d %8d %8d\n",
					d.Deployment, d.Version, float64(d.Size)/(1024*1024),
					d.VersionCount, d.ImageCount, d.VolumeCount)
			}
			return nil
		},
	}
}

func createInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <archive-file>",
		Short: "Show the contents of a snapshot archive",
		Long:  "Display the manifest and artifact lists of a snapshot archive without extracting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := snapshot.Inspect(args[0])
			if err != nil {
				return err
			}

			m := info.Manifest
			fmt.Printf("📋 Snapshot of '%s'\n", m.Deployment)
			fmt.Printf("   Taken:   %s\n", m.BackupDate.Format("2006-01-02 15:04:05"))
			fmt.Printf("   Host:    %s\n", m.CreatedBy)
			fmt.Printf("   Source:  %s\n", m.SourceDirectory)
			fmt.Printf("   Schema:  %s\n", m.BackupVersion)
			fmt.Printf("   Images:  %d\n", len(info.Images))
			for _, ref := range info.Images {
				fmt.Printf("     - %s\n", ref)
			}
			fmt.Printf("   Volumes: %d\n", len(info.Volumes))
			for _, name := range info.Volumes {
				fmt.Printf("     - %s\n", name)
			}
			fmt.Printf("   Config:  %d file(s)\n", len(info.Config))
			return nil
		},
	}
}

func createVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <deployment>",
		Short: "List stored versions of a deployment snapshot",
		Long:  "List all stored versions of a deployment snapshot with timestamps and sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			lib, err := openLibrary(ctx)
			if err != nil {
				return err
			}

			// Accept an archive filename as well as a bare deployment name.
			deployment := snapshot.DeploymentName(args[0])
			versions, err := lib.Versions(ctx, deployment)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				return fmt.Errorf("no snapshots found for deployment '%s'", deployment)
			}

			fmt.Printf("%-18s %-20s %10s %8s\n", "VERSION", "CREATED", "SIZE", "IMAGES")
			for _, v := range versions {
				fmt.Printf("%-18s %-20s %9.1fM %8d\n",
					v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"),
					float64(v.Size)/(1024*1024), v.ImageCount)
			}
			return nil
		},
	}
}

func createDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <deployment>",
		Short: "Delete stored snapshots",
		Long:  "Delete all stored versions of a deployment snapshot, or one version with --version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			ref := args[0]
			if versionFlag != "" {
				ref = fmt.Sprintf("%s@%s", ref, versionFlag)
			}

			if !force {
				fmt.Printf("⚠️  This will permanently delete '%s'\n", ref)
				fmt.Print("Continue? (y/N): ")
				var response string
				if _, err := fmt.Scanln(&response); err != nil {
					response = "N"
				}
				if response != "y" && response != "Y" {
					fmt.Println("Delete cancelled")
					return nil
				}
			}

			lib, err := openLibrary(ctx)
			if err != nil {
				return err
			}
			if err := lib.Delete(ctx, ref); err != nil {
				return err
			}

			if !quiet {
				fmt.Printf("🗑  Deleted %s\n", ref)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&versionFlag, "version", "", "Specific version to delete (format: YYYYMMDD-HHMMSS)")
	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompts")

	return cmd
}

func createVolumesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "volumes",
		Short: "List all Docker volumes",
		Long:  "List all named Docker volumes available on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := docker.NewClient(ctx)
			if err != nil {
				return err
			}

			volumes, err := client.ListVolumes(ctx)
			if err != nil {
				return err
			}
			if len(volumes) == 0 {
				fmt.Println("No volumes found")
				return nil
			}

			fmt.Printf("%-32s %-10s %s\n", "NAME", "DRIVER", "CREATED")
			for _, vol := range volumes {
				fmt.Printf("%-32s %-10s %s\n", vol.Name, vol.Driver, vol.CreatedAt)
			}
			return nil
		},
	}
}

// promptPassword prompts the user for a password
func promptPassword(prompt string, confirm bool) string {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		if verbose {
			fmt.Printf("Error reading password: %v\n", err)
		}
		return ""
	}

	pass := string(bytePassword)

	if confirm {
		fmt.Print("Confirm password: ")
		byteConfirm, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			if verbose {
				fmt.Printf("Error reading password confirmation: %v\n", err)
			}
			return ""
		}

		if pass != string(byteConfirm) {
			fmt.Println("❌ Passwords do not match")
			return ""
		}
	}

	return pass
}
