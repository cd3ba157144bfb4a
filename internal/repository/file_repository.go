package repository

import (
	"database/sql"
	"time"

	"github.com/cryptbin/cryptbin/internal/models"
)

const fileColumns = `id, title, description, category, original_filename, content_type,
	is_encrypted, algorithm, key_hex, iv_hex, auth_tag_hex, lock_password_hash,
	owner_principal, plain_length_bytes, encrypted_size_bytes, views, expires_at, created_at`

type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(file *models.FileRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, file.ID, file.Title, file.Description, file.Category, file.OriginalFilename, file.ContentType,
		file.IsEncrypted, file.Algorithm, file.KeyHex, file.IVHex, file.AuthTagHex, file.LockPasswordHash,
		file.OwnerPrincipal, file.PlainLength, file.EncryptedSize, file.Views, file.ExpiresAt, file.CreatedAt)
	return err
}

func scanFile(scan func(dest ...any) error) (*models.FileRecord, error) {
	file := &models.FileRecord{}
	err := scan(&file.ID, &file.Title, &file.Description, &file.Category, &file.OriginalFilename, &file.ContentType,
		&file.IsEncrypted, &file.Algorithm, &file.KeyHex, &file.IVHex, &file.AuthTagHex, &file.LockPasswordHash,
		&file.OwnerPrincipal, &file.PlainLength, &file.EncryptedSize, &file.Views, &file.ExpiresAt, &file.CreatedAt)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (r *FileRepository) GetByID(id string) (*models.FileRecord, error) {
	row := r.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	return scanFile(row.Scan)
}

func (r *FileRepository) GetByOwner(ownerPrincipal string) ([]*models.FileRecord, error) {
	rows, err := r.db.Query(`
		SELECT `+fileColumns+` FROM files WHERE owner_principal = ? ORDER BY created_at DESC
	`, ownerPrincipal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.FileRecord
	for rows.Next() {
		file, err := scanFile(rows.Scan)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// IncrementViews bumps the view counter and reports whether the record exists.
// The counter moves on every successful detail lookup, not on download.
func (r *FileRepository) IncrementViews(id string) (bool, error) {
	res, err := r.db.Exec(`UPDATE files SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateMetadata applies the owner-editable fields. Nil fields are left as-is.
func (r *FileRepository) UpdateMetadata(id string, edit *models.MetadataEdit) error {
	file, err := r.GetByID(id)
	if err != nil {
		return err
	}

	title := file.Title
	if edit.Title != nil {
		title = *edit.Title
	}
	description := file.Description
	if edit.Description != nil {
		description = *edit.Description
	}
	category := file.Category
	if edit.Category != nil {
		category = *edit.Category
	}
	expiresAt := file.ExpiresAt
	if edit.ExpiresAt != nil {
		expiresAt = edit.ExpiresAt
	}

	_, err = r.db.Exec(`
		UPDATE files SET title = ?, description = ?, category = ?, expires_at = ? WHERE id = ?
	`, title, description, category, expiresAt, id)
	return err
}

func (r *FileRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM files WHERE id = ?`, id)
	return err
}

func (r *FileRepository) GetExpired(now time.Time) ([]*models.FileRecord, error) {
	rows, err := r.db.Query(`
		SELECT `+fileColumns+` FROM files WHERE expires_at IS NOT NULL AND expires_at < ?
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.FileRecord
	for rows.Next() {
		file, err := scanFile(rows.Scan)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}
