package manageable

// History message keys. Params carry the values the browser interpolates.
const (
	HistoryNameUpdated       = "history.name_updated"
	HistoryNameUpdateError   = "history.name_update_error"
	HistoryStatusChanged     = "history.status_changed"
	HistoryDeviceError       = "history.device_error"
	HistoryStartRecord       = "history.start_record"
	HistoryStartRecordError  = "history.start_record_error"
	HistoryStopRecord        = "history.stop_record"
	HistoryStopRecordError   = "history.stop_record_error"
	HistoryIndexSession      = "history.index_session"
	HistoryIndexSessionError = "history.index_session_error"
	HistoryScheduleAborted   = "history.schedule_aborted"
	HistoryGroupJoined       = "history.group_joined"
	HistoryGroupLeft         = "history.group_left"
)
