package drive

import (
	"html"
	"time"
)

// RootFID is the opaque identifier of the synthetic root directory
// (spec §3, invariant 2).
const RootFID = "0"

// FileRecord is one remote file or directory (spec §3).
type FileRecord struct {
	FID         string
	ParentFID   string
	Name        string
	IsDir       bool
	IsFile      bool
	Size        uint64
	CreatedMS   uint64
	UpdatedMS   uint64
	FormatType  string
	ContentHash string

	// ParentPath is the absolute path under which this record was
	// cached; set by the Directory Cache at insertion time, never by
	// the remote (spec §3).
	ParentPath string
}

// NewRootRecord returns the synthetic root FileRecord that seeds the
// targeted DFS (spec §3, §4.B step 3).
func NewRootRecord() FileRecord {
	now := uint64(time.Now().UnixMilli())
	return FileRecord{
		FID:       RootFID,
		ParentFID: "",
		Name:      "",
		IsDir:     true,
		IsFile:    false,
		CreatedMS: now,
		UpdatedMS: now,
	}
}

// ModTime returns the record's modification time derived from
// UpdatedMS (spec §4.C "metadata").
func (f FileRecord) ModTime() time.Time {
	return time.UnixMilli(int64(f.UpdatedMS))
}

// Listing is an ordered sequence of FileRecord with a total-count hint
// from the remote metadata (spec §3, "DirectoryListing").
type Listing struct {
	Files      []FileRecord
	TotalKnown uint32
}

// envelope is the uniform response wrapper every remote endpoint uses
// (spec §6).
type envelope[T any] struct {
	Status    int             `json:"status"`
	Code      uint32          `json:"code"`
	Message   string          `json:"message"`
	Timestamp uint64          `json:"timestamp"`
	Data      T               `json:"data"`
	Metadata  envelopeMeta    `json:"metadata"`
}

type envelopeMeta struct {
	Total uint32 `json:"_total"`
	Count uint32 `json:"_count"`
	Page  uint32 `json:"_page"`
}

// listFilesData is the `data` payload of the "list children" endpoint.
type listFilesData struct {
	List []wireFile `json:"list"`
}

// wireFile is the JSON shape of a file/directory entry as the remote
// API returns it, before HTML-entity decoding of file_name (spec §4.A).
type wireFile struct {
	FID        string `json:"fid"`
	FileName   string `json:"file_name"`
	PDirFID    string `json:"pdir_fid"`
	Size       uint64 `json:"size"`
	FormatType string `json:"format_type"`
	Status     uint8  `json:"status"`
	CreatedAt  uint64 `json:"created_at"`
	UpdatedAt  uint64 `json:"updated_at"`
	Dir        bool   `json:"dir"`
	File       bool   `json:"file"`
	ContentHash string `json:"content_hash"`
}

func (w wireFile) toRecord() FileRecord {
	return FileRecord{
		FID:         w.FID,
		ParentFID:   w.PDirFID,
		Name:        html.UnescapeString(w.FileName),
		IsDir:       w.Dir,
		IsFile:      w.File,
		Size:        w.Size,
		CreatedMS:   w.CreatedAt,
		UpdatedMS:   w.UpdatedAt,
		FormatType:  w.FormatType,
		ContentHash: w.ContentHash,
	}
}

type downloadURLItem struct {
	FID         string `json:"fid"`
	DownloadURL string `json:"download_url"`
}

type emptyData struct{}

type deleteFilesData struct {
	TaskID string `json:"task_id"`
	Finish bool   `json:"finish"`
}

type createFolderData struct {
	Finish bool   `json:"finish"`
	FID    string `json:"fid"`
}

type quotaData struct {
	TotalCapacity uint64 `json:"total_capacity"`
	UseCapacity   uint64 `json:"use_capacity"`
}

// request bodies

type downloadURLsRequest struct {
	FIDs []string `json:"fids"`
}

type deleteFilesRequest struct {
	ActionType  uint8    `json:"action_type"`
	ExcludeFIDs []string `json:"exclude_fids"`
	FileList    []string `json:"filelist"`
}

type createFolderRequest struct {
	PDirFID     string `json:"pdir_fid"`
	FileName    string `json:"file_name"`
	DirPath     string `json:"dir_path"`
	DirInitLock bool   `json:"dir_init_lock"`
}

type renameFileRequest struct {
	FID      string `json:"fid"`
	FileName string `json:"file_name"`
}

type moveFileRequest struct {
	FileList  []string `json:"filelist"`
	ToPDirFID string   `json:"to_pdir_fid"`
}
