package drive

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"recmirror/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Uploader mirrors structure documents to a Google Drive folder so
// non-technical users can browse them without repository access.
type Uploader struct {
	service  *drive.Service
	folderID string
	logger   *zerolog.Logger
}

func NewUploader(cfg config.DriveConfig, logger *zerolog.Logger) (*Uploader, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %v", err)
	}

	return &Uploader{
		service:  srv,
		folderID: cfg.FolderID,
		logger:   logger,
	}, nil
}

// UploadStructure creates the file on first upload and updates it in place
// afterwards, so the Drive link stays stable across syncs.
func (u *Uploader) UploadStructure(ctx context.Context, name string, content []byte, existingFileID string) (string, error) {
	media := bytes.NewReader(content)

	if existingFileID != "" {
		file, err := u.service.Files.Update(existingFileID, &drive.File{}).
			Media(media).
			Context(ctx).
			Do()
		if err == nil {
			return file.Id, nil
		}
		// The file may have been deleted out of band; fall through and
		// create a fresh one.
		u.logger.Warn().Err(err).Str("file_id", existingFileID).Msg("drive update failed, recreating file")
		media = bytes.NewReader(content)
	}

	meta := &drive.File{
		Name:     name,
		MimeType: "application/json",
	}
	if u.folderID != "" {
		meta.Parents = []string{u.folderID}
	}

	file, err := u.service.Files.Create(meta).
		Media(media).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create drive file %s: %w", name, err)
	}
	return file.Id, nil
}
