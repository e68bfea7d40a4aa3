package v1

import "strings"

var (
	// common errors
	ErrSuccess             = newError(0, "ok")
	ErrBadRequest          = newError(400, "bad request")
	ErrUnauthorized        = newError(401, "unauthorized")
	ErrNotFound            = newError(404, "not found")
	ErrInternalServerError = newError(500, "internal server error")

	// more biz errors
	ErrEmailAlreadyUse    = newError(1001, "The email is already in use.")
	ErrUsernameAlreadyUse = newError(1002, "The username is already in use.")
)

// CodeMigrateError 迁移类错误在响应包络里的统一 code，message 为错误码、data 为参数列表
const CodeMigrateError = 3001

// 迁移错误码，对外契约的一部分，与集群客户端约定保持稳定
const (
	CodeTooManyStorageMigrates      = "too_many_storage_migrates"
	CodeSrDoesNotSupportMigration   = "sr_does_not_support_migration"
	CodeVdiCbtEnabled               = "vdi_cbt_enabled"
	CodeVdiIsEncrypted              = "vdi_is_encrypted"
	CodeVdiOnBootModeIncompatible   = "vdi_on_boot_mode_incompatible_with_operation"
	CodeVdiNotInMap                 = "vdi_not_in_map"
	CodeVifNotInMap                 = "vif_not_in_map"
	CodeVdiLocationMissing          = "vdi_location_missing"
	CodeLocationNotUnique           = "location_not_unique"
	CodeMirrorFailed                = "mirror_failed"
	CodeSuspendImageNotAccessible   = "suspend_image_not_accessible"
	CodeHostDisabled                = "host_disabled"
	CodeVMHostIncompatibleVersion   = "vm_host_incompatible_version_migrate"
	CodeVMBadPowerState             = "vm_bad_power_state"
	CodeVMMigrateFailed             = "vm_migrate_failed"
	CodeUnimplementedInSMBackend    = "unimplemented_in_sm_backend"
	CodeCannotContactHost           = "cannot_contact_host"
	CodeHostHasNoManagementIP       = "host_has_no_management_ip"
	CodeOperationNotAllowed         = "operation_not_allowed"
	CodeLicenceRestriction          = "licence_restriction"
	CodeVMHasPCIAttached            = "vm_has_pci_attached"
	CodeTaskCancelled               = "task_cancelled"
	CodeHostNotEnoughPCPUs          = "host_not_enough_pcpus"
	CodeHardwarePlatformUnsupported = "vm_host_incompatible_virtual_hardware_platform_version"
	CodeMetadataImportConflict      = "duplicate_vm"
	CodeInvalidValue                = "invalid_value"
	CodeInternalError               = "internal_error"
)

// MigrateError 带参数的迁移错误，形如 too_many_storage_migrates ["3"]
type MigrateError struct {
	Code   string   `json:"code"`
	Params []string `json:"params"`
}

func NewMigrateError(code string, params ...string) *MigrateError {
	if params == nil {
		params = []string{}
	}
	return &MigrateError{Code: code, Params: params}
}

func (e *MigrateError) Error() string {
	if len(e.Params) == 0 {
		return e.Code
	}
	return e.Code + " [" + strings.Join(e.Params, "; ") + "]"
}

// Is 让 errors.Is 按错误码匹配，参数不参与比较
func (e *MigrateError) Is(target error) bool {
	t, ok := target.(*MigrateError)
	return ok && t.Code == e.Code
}
