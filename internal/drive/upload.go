package drive

// Upload request/response shapes mirrored from the remote protocol.
// Nothing in this module constructs or sends them: the WebDAV
// Front-End rejects writes outright (spec §9 "uploads"), so these
// types exist only as a documented extension point, not as exercised
// code.

type upPreRequest struct {
	PDirFID      string `json:"pdir_fid"`
	FileName     string `json:"file_name"`
	Size         uint64 `json:"size"`
	FormatType   string `json:"format_type"`
	L            string `json:"l_created_at"`
	ParallelHash bool   `json:"parallel_upload"`
}

type upPreData struct {
	TaskID   string `json:"task_id"`
	Bucket   string `json:"bucket"`
	ObjKey   string `json:"obj_key"`
	UploadID string `json:"upload_id"`
	AuthInfo string `json:"auth_info"`
}

type upHashRequest struct {
	TaskID string `json:"task_id"`
	MD5    string `json:"md5"`
	SHA1   string `json:"sha1"`
}

type upHashData struct {
	Finish bool `json:"finish"`
}

type upFinishRequest struct {
	TaskID string `json:"task_id"`
	ObjKey string `json:"obj_key"`
}

type upFinishData struct {
	FID    string `json:"fid"`
	Finish bool   `json:"finish"`
}
