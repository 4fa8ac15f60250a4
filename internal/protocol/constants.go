package protocol

const (
	ChunkSize        = 4096
	MaxCommandLength = 1024
	MaxFrameSize     = 1024 * 1024
)

// Replies sent by the serving peer.
const (
	Greeting       = "Welcome to the peer. Options:\n1. LIST\n2. DOWNLOAD <filename>\n3. UPLOAD <filename>\nEnter command: "
	EmptyListing   = "[empty]"
	Found          = "FOUND"
	NotFound       = "NOT_FOUND"
	Ready          = "READY"
	UploadRejected = "UPLOAD_REJECTED"
	UploadComplete = "UPLOAD_COMPLETE"
	InvalidCommand = "Invalid command."
)

type CommandKind uint8

const (
	CmdEmpty CommandKind = iota
	CmdList
	CmdDownload
	CmdUpload
	CmdUnknown
)

func (k CommandKind) String() string {
	switch k {
	case CmdEmpty:
		return "EMPTY"
	case CmdList:
		return "LIST"
	case CmdDownload:
		return "DOWNLOAD"
	case CmdUpload:
		return "UPLOAD"
	case CmdUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}
