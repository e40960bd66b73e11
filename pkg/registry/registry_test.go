package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These permissions and op names must map to the same op codes.
var permissionToOpName = map[string]string{
	"android.permission.ACCESS_COARSE_LOCATION":   OpCoarseLocation,
	"android.permission.ACCESS_FINE_LOCATION":     OpFineLocation,
	"android.permission.READ_CONTACTS":            OpReadContacts,
	"android.permission.WRITE_CONTACTS":           OpWriteContacts,
	"android.permission.READ_CALL_LOG":            OpReadCallLog,
	"android.permission.WRITE_CALL_LOG":           OpWriteCallLog,
	"android.permission.READ_CALENDAR":            OpReadCalendar,
	"android.permission.WRITE_CALENDAR":           OpWriteCalendar,
	"android.permission.CALL_PHONE":               OpCallPhone,
	"android.permission.READ_SMS":                 OpReadSMS,
	"android.permission.RECEIVE_SMS":              OpReceiveSMS,
	"android.permission.RECEIVE_MMS":              OpReceiveMMS,
	"android.permission.RECEIVE_WAP_PUSH":         OpReceiveWapPush,
	"android.permission.SEND_SMS":                 OpSendSMS,
	"android.permission.WRITE_SETTINGS":           OpWriteSettings,
	"android.permission.SYSTEM_ALERT_WINDOW":      OpSystemAlertWindow,
	"android.permission.ACCESS_NOTIFICATIONS":     OpAccessNotifications,
	"android.permission.CAMERA":                   OpCamera,
	"android.permission.RECORD_AUDIO":             OpRecordAudio,
	"android.permission.READ_PHONE_STATE":         OpReadPhoneState,
	"android.permission.ADD_VOICEMAIL":            OpAddVoicemail,
	"android.permission.USE_SIP":                  OpUseSIP,
	"android.permission.PROCESS_OUTGOING_CALLS":   OpProcessOutgoingCalls,
	"android.permission.BODY_SENSORS":             OpBodySensors,
	"android.permission.READ_CELL_BROADCASTS":     OpReadCellBroadcasts,
	"android.permission.READ_EXTERNAL_STORAGE":    OpReadExternalStorage,
	"android.permission.WRITE_EXTERNAL_STORAGE":   OpWriteExternalStorage,
	"android.permission.INTERACT_ACROSS_PROFILES": OpInteractAcrossProfiles,
}

func TestDefault_AllOpsHaveNames(t *testing.T) {
	c := Default()
	names := make(map[string]struct{})
	for _, name := range c.Names() {
		require.NotEmpty(t, name, "each op must have a name")
		names[name] = struct{}{}
	}
	assert.Equal(t, c.Len(), len(names), "not all op names are unique")
}

func TestDefault_OpCodesUnique(t *testing.T) {
	c := Default()
	codes := make(map[int]struct{})
	for _, name := range c.Names() {
		code, err := c.StrOpToOp(name)
		require.NoError(t, err)
		codes[code] = struct{}{}
	}
	assert.Equal(t, c.Len(), len(codes), "not all op codes are unique")
}

func TestDefault_PermissionMapping(t *testing.T) {
	c := Default()
	for permission, name := range permissionToOpName {
		mapped, ok := c.PermissionToOp(permission)
		require.True(t, ok, permission)
		assert.Equal(t, name, mapped)

		code, err := c.StrOpToOp(name)
		require.NoError(t, err)
		assert.Equal(t, code, c.PermissionToOpCode(permission))

		strMapped, err := c.OpToPermission(name)
		require.NoError(t, err)
		assert.Equal(t, permission, strMapped)

		op, err := c.ByCode(code)
		require.NoError(t, err)
		codeMapped, ok := c.PermissionFor(op)
		require.True(t, ok)
		assert.Equal(t, permission, codeMapped)
	}
}

func TestDefault_PermissionRoundTrip(t *testing.T) {
	c := Default()
	for _, op := range c.Ops() {
		perm, ok := c.PermissionFor(op)
		if !ok {
			continue
		}
		back, ok := c.OpFor(perm)
		require.True(t, ok)
		assert.Equal(t, op, back)
	}
	for _, perm := range c.Permissions() {
		op, ok := c.OpFor(perm)
		require.True(t, ok)
		back, _ := c.PermissionFor(op)
		assert.Equal(t, perm, back)
	}
}

func TestCatalog_UnknownOperation(t *testing.T) {
	c := Default()

	_, err := c.ByName("android:does_not_exist")
	assert.ErrorIs(t, err, ErrUnknownOperation)

	_, err = c.ByCode(-1)
	assert.ErrorIs(t, err, ErrUnknownOperation)

	_, err = c.ByCode(c.Len())
	assert.ErrorIs(t, err, ErrUnknownOperation)

	_, err = c.OpToDefaultMode("nope")
	assert.ErrorIs(t, err, ErrUnknownOperation)

	assert.Equal(t, -1, c.PermissionToOpCode("android.permission.WRITE_SMS"))
}

func TestCatalog_DefaultModes(t *testing.T) {
	c := Default()

	mode, err := c.OpToDefaultMode(OpPhoneCallMicrophone)
	require.NoError(t, err)
	assert.Equal(t, ModeIgnored, mode)

	mode, err = c.OpToDefaultMode(OpWriteCalendar)
	require.NoError(t, err)
	assert.Equal(t, ModeAllowed, mode)

	op, err := c.ByName(OpAccessRestrictedSettings)
	require.NoError(t, err)
	assert.True(t, op.RestrictRead)
	assert.Equal(t, ModeAllowed, c.DefaultMode(op))
}

func TestNew_RejectsInvalidTables(t *testing.T) {
	t.Run("sparse codes", func(t *testing.T) {
		_, err := New([]Op{{Code: 1, Name: "a"}})
		assert.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := New([]Op{{Code: 0}})
		assert.Error(t, err)
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := New([]Op{{Code: 0, Name: "a"}, {Code: 1, Name: "a"}})
		assert.Error(t, err)
	})

	t.Run("shared permission", func(t *testing.T) {
		_, err := New([]Op{
			{Code: 0, Name: "a", Permission: "p"},
			{Code: 1, Name: "b", Permission: "p"},
		})
		assert.Error(t, err)
	})

	t.Run("bad default mode", func(t *testing.T) {
		_, err := New([]Op{{Code: 0, Name: "a", DefaultMode: Mode(9)}})
		assert.Error(t, err)
	})
}

func TestMode_TextRoundTrip(t *testing.T) {
	for _, m := range []Mode{ModeAllowed, ModeIgnored, ModeErrored, ModeDefault} {
		text, err := m.MarshalText()
		require.NoError(t, err)

		var back Mode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, m, back)
	}

	mode, err := ParseMode("errored")
	require.NoError(t, err)
	assert.Equal(t, ModeErrored, mode)

	_, err = ParseMode("sometimes")
	assert.Error(t, err)

	_, err = Mode(7).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "mode(7)", Mode(7).String())
}
