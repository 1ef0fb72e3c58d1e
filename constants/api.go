package constants

import "time"

const (
	ENV = "API_ENV"

	ParamID      = "id"
	ParamOrderID = "order_id"
	ParamFormat  = "format"
	ParamAs      = "as"
	ParamConfirm = "confirm"
	ParamAPIKey  = "x-api-key"
	ParamSort    = "_sort"
	ParamSearch  = "_search"
	ParamColumn  = "_column"

	// Product is the analysis pipeline every job is started with.
	Product = "Atypical/MSAp/PSP-v1.0"

	OriginType = "neuropacsGUI"

	DefaultServerURL = "https://jdfkdttvlf.execute-api.us-east-1.amazonaws.com/prod"

	QCNotApplicable = "NA"
	QCInProgress    = "IP"
	QCPass          = "PASS"
	QCFail          = "FAIL"

	StatusQCRunning    = "QC Running..."
	StatusQCFailed     = "QC failed"
	StatusInitializing = "0% - Initializing"
	StatusFinished     = "Finished"
	StatusFailedPrefix = "Failed - "

	UnknownDataset = "Unknown"

	FormatPNG  = "PNG"
	FormatJSON = "JSON"
	FormatTXT  = "TXT"
	FormatXML  = "XML"

	SinkFile  = "file"
	SinkMinIO = "minio"

	NoticeInfo    = "INFO"
	NoticeWarning = "WARNING"

	JobStateUploading = "UPLOADING"
	JobStateQCPending = "QC_PENDING"
	JobStateQCFail    = "QC_FAIL"
	JobStateRunning   = "RUNNING"
	JobStateFinished  = "FINISHED"
	JobStateFailed    = "FAILED"

	DefaultQCInterval      = 10 * time.Second
	DefaultQCTimeout       = 300 * time.Second
	DefaultRefreshInterval = 60 * time.Second
	DefaultRemoteTimeout   = 30 * time.Second
	DefaultUploadTimeout   = 10 * time.Minute
	DefaultUploadRetention = 10 * time.Minute

	AppDataDir  = "neuropacsUI"
	AppDataFile = "app_data.json"
)
