package registry

// Operation names. The string form is the stable identifier used in
// persistence, configuration and the HTTP surface; codes are only stable
// within one catalog.
const (
	OpCoarseLocation            = "android:coarse_location"
	OpFineLocation              = "android:fine_location"
	OpGPS                       = "android:gps"
	OpVibrate                   = "android:vibrate"
	OpReadContacts              = "android:read_contacts"
	OpWriteContacts             = "android:write_contacts"
	OpReadCallLog               = "android:read_call_log"
	OpWriteCallLog              = "android:write_call_log"
	OpReadCalendar              = "android:read_calendar"
	OpWriteCalendar             = "android:write_calendar"
	OpWifiScan                  = "android:wifi_scan"
	OpPostNotification          = "android:post_notification"
	OpNeighboringCells          = "android:neighboring_cells"
	OpCallPhone                 = "android:call_phone"
	OpReadSMS                   = "android:read_sms"
	OpWriteSMS                  = "android:write_sms"
	OpReceiveSMS                = "android:receive_sms"
	OpReceiveEmergencyBroadcast = "android:receive_emergency_broadcast"
	OpReceiveMMS                = "android:receive_mms"
	OpReceiveWapPush            = "android:receive_wap_push"
	OpSendSMS                   = "android:send_sms"
	OpWriteSettings             = "android:write_settings"
	OpSystemAlertWindow         = "android:system_alert_window"
	OpAccessNotifications       = "android:access_notifications"
	OpCamera                    = "android:camera"
	OpRecordAudio               = "android:record_audio"
	OpPlayAudio                 = "android:play_audio"
	OpReadClipboard             = "android:read_clipboard"
	OpWriteClipboard            = "android:write_clipboard"
	OpReadPhoneState            = "android:read_phone_state"
	OpAddVoicemail              = "android:add_voicemail"
	OpUseSIP                    = "android:use_sip"
	OpProcessOutgoingCalls      = "android:process_outgoing_calls"
	OpBodySensors               = "android:body_sensors"
	OpReadCellBroadcasts        = "android:read_cell_broadcasts"
	OpReadExternalStorage       = "android:read_external_storage"
	OpWriteExternalStorage      = "android:write_external_storage"
	OpGetAccounts               = "android:get_accounts"
	OpReadPhoneNumbers          = "android:read_phone_numbers"
	OpPictureInPicture          = "android:picture_in_picture"
	OpInteractAcrossProfiles    = "android:interact_across_profiles"
	OpPhoneCallMicrophone       = "android:phone_call_microphone"
	OpPhoneCallCamera           = "android:phone_call_camera"
	OpAccessRestrictedSettings  = "android:access_restricted_settings"
	OpActivityRecognition       = "android:activity_recognition"
	OpAccessMediaLocation       = "android:access_media_location"
)

const permPrefix = "android.permission."

// builtinOps is the platform catalog. Codes are the slice index.
var builtinOps = []Op{
	{Name: OpCoarseLocation, Permission: permPrefix + "ACCESS_COARSE_LOCATION", DefaultMode: ModeAllowed},
	{Name: OpFineLocation, Permission: permPrefix + "ACCESS_FINE_LOCATION", DefaultMode: ModeAllowed},
	{Name: OpGPS, DefaultMode: ModeAllowed},
	{Name: OpVibrate, DefaultMode: ModeAllowed},
	{Name: OpReadContacts, Permission: permPrefix + "READ_CONTACTS", DefaultMode: ModeAllowed},
	{Name: OpWriteContacts, Permission: permPrefix + "WRITE_CONTACTS", DefaultMode: ModeAllowed},
	{Name: OpReadCallLog, Permission: permPrefix + "READ_CALL_LOG", DefaultMode: ModeAllowed},
	{Name: OpWriteCallLog, Permission: permPrefix + "WRITE_CALL_LOG", DefaultMode: ModeAllowed},
	{Name: OpReadCalendar, Permission: permPrefix + "READ_CALENDAR", DefaultMode: ModeAllowed},
	{Name: OpWriteCalendar, Permission: permPrefix + "WRITE_CALENDAR", DefaultMode: ModeAllowed},
	{Name: OpWifiScan, DefaultMode: ModeAllowed},
	{Name: OpPostNotification, Permission: permPrefix + "POST_NOTIFICATIONS", DefaultMode: ModeAllowed},
	{Name: OpNeighboringCells, DefaultMode: ModeAllowed},
	{Name: OpCallPhone, Permission: permPrefix + "CALL_PHONE", DefaultMode: ModeAllowed},
	{Name: OpReadSMS, Permission: permPrefix + "READ_SMS", DefaultMode: ModeAllowed},
	{Name: OpWriteSMS, DefaultMode: ModeIgnored},
	{Name: OpReceiveSMS, Permission: permPrefix + "RECEIVE_SMS", DefaultMode: ModeAllowed},
	{Name: OpReceiveEmergencyBroadcast, DefaultMode: ModeAllowed},
	{Name: OpReceiveMMS, Permission: permPrefix + "RECEIVE_MMS", DefaultMode: ModeAllowed},
	{Name: OpReceiveWapPush, Permission: permPrefix + "RECEIVE_WAP_PUSH", DefaultMode: ModeAllowed},
	{Name: OpSendSMS, Permission: permPrefix + "SEND_SMS", DefaultMode: ModeAllowed},
	{Name: OpWriteSettings, Permission: permPrefix + "WRITE_SETTINGS", DefaultMode: ModeDefault},
	{Name: OpSystemAlertWindow, Permission: permPrefix + "SYSTEM_ALERT_WINDOW", DefaultMode: ModeDefault},
	{Name: OpAccessNotifications, Permission: permPrefix + "ACCESS_NOTIFICATIONS", DefaultMode: ModeIgnored},
	{Name: OpCamera, Permission: permPrefix + "CAMERA", DefaultMode: ModeAllowed},
	{Name: OpRecordAudio, Permission: permPrefix + "RECORD_AUDIO", DefaultMode: ModeAllowed},
	{Name: OpPlayAudio, DefaultMode: ModeAllowed},
	{Name: OpReadClipboard, DefaultMode: ModeAllowed},
	{Name: OpWriteClipboard, DefaultMode: ModeAllowed},
	{Name: OpReadPhoneState, Permission: permPrefix + "READ_PHONE_STATE", DefaultMode: ModeAllowed},
	{Name: OpAddVoicemail, Permission: permPrefix + "ADD_VOICEMAIL", DefaultMode: ModeAllowed},
	{Name: OpUseSIP, Permission: permPrefix + "USE_SIP", DefaultMode: ModeAllowed},
	{Name: OpProcessOutgoingCalls, Permission: permPrefix + "PROCESS_OUTGOING_CALLS", DefaultMode: ModeAllowed},
	{Name: OpBodySensors, Permission: permPrefix + "BODY_SENSORS", DefaultMode: ModeAllowed},
	{Name: OpReadCellBroadcasts, Permission: permPrefix + "READ_CELL_BROADCASTS", DefaultMode: ModeAllowed},
	{Name: OpReadExternalStorage, Permission: permPrefix + "READ_EXTERNAL_STORAGE", DefaultMode: ModeAllowed},
	{Name: OpWriteExternalStorage, Permission: permPrefix + "WRITE_EXTERNAL_STORAGE", DefaultMode: ModeAllowed},
	{Name: OpGetAccounts, Permission: permPrefix + "GET_ACCOUNTS", DefaultMode: ModeAllowed},
	{Name: OpReadPhoneNumbers, Permission: permPrefix + "READ_PHONE_NUMBERS", DefaultMode: ModeAllowed},
	{Name: OpPictureInPicture, DefaultMode: ModeAllowed},
	{Name: OpInteractAcrossProfiles, Permission: permPrefix + "INTERACT_ACROSS_PROFILES", DefaultMode: ModeDefault},
	{Name: OpPhoneCallMicrophone, DefaultMode: ModeIgnored},
	{Name: OpPhoneCallCamera, DefaultMode: ModeIgnored},
	{Name: OpAccessRestrictedSettings, DefaultMode: ModeAllowed, RestrictRead: true},
	{Name: OpActivityRecognition, Permission: permPrefix + "ACTIVITY_RECOGNITION", DefaultMode: ModeAllowed},
	{Name: OpAccessMediaLocation, Permission: permPrefix + "ACCESS_MEDIA_LOCATION", DefaultMode: ModeAllowed},
}

// BuiltinOps returns a copy of the platform operation table with codes
// assigned.
func BuiltinOps() []Op {
	ops := make([]Op, len(builtinOps))
	copy(ops, builtinOps)
	for i := range ops {
		ops[i].Code = i
	}
	return ops
}
