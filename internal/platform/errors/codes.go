// Package errors provides structured error handling shared by the store and
// the record layers built on it.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Storage path errors
	CodePathInvalid Code = "PATH_INVALID"
	CodePathFailed  Code = "PATH_FAILED"

	// Codec errors
	CodeDecodeFailed Code = "DECODE_FAILED"
	CodeEncodeFailed Code = "ENCODE_FAILED"

	// Store errors
	CodeWriteFailed           Code = "WRITE_FAILED"
	CodeReferenceLookupFailed Code = "REFERENCE_LOOKUP_FAILED"
	CodeIdentityRequired      Code = "IDENTITY_REQUIRED"
	CodeDuplicateIdentity     Code = "DUPLICATE_IDENTITY"
	CodeStoreRemoved          Code = "STORE_REMOVED"

	// User errors
	CodeUserIDAlreadySet    Code = "USER_ID_ALREADY_SET"
	CodeUserIDTooShort      Code = "USER_ID_TOO_SHORT"
	CodeUserNameTooShort    Code = "USER_NAME_TOO_SHORT"
	CodeUserAddressTooShort Code = "USER_ADDRESS_TOO_SHORT"
	CodeUserEmailInvalid    Code = "USER_EMAIL_INVALID"
	CodeUserPhoneTooShort   Code = "USER_PHONE_TOO_SHORT"
	CodeUserContactMissing  Code = "USER_CONTACT_MISSING"
	CodeUserPasswordNotSet  Code = "USER_PASSWORD_NOT_SET"

	// Password errors
	CodePasswordWeak Code = "PASSWORD_WEAK"

	// Mail errors
	CodeMailSendFailed Code = "MAIL_SEND_FAILED"

	// Auth errors
	CodeCredentialsInvalid Code = "CREDENTIALS_INVALID"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
)

// Kind groups codes into the broad failure families callers branch on.
type Kind string

const (
	KindUnknown         Kind = "unknown"
	KindPath            Kind = "path"
	KindDecode          Kind = "decode"
	KindEncode          Kind = "encode"
	KindWrite           Kind = "write"
	KindReferenceLookup Kind = "reference_lookup"
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindExternal        Kind = "external"
	KindUnauthenticated Kind = "unauthenticated"
)

// Kind maps a code to its failure family.
func (c Code) Kind() Kind {
	switch c {
	case CodePathInvalid, CodePathFailed, CodeStoreRemoved:
		return KindPath
	case CodeDecodeFailed:
		return KindDecode
	case CodeEncodeFailed:
		return KindEncode
	case CodeWriteFailed:
		return KindWrite
	case CodeReferenceLookupFailed:
		return KindReferenceLookup

	case CodeIdentityRequired,
		CodeUserIDAlreadySet,
		CodeUserIDTooShort,
		CodeUserNameTooShort,
		CodeUserAddressTooShort,
		CodeUserEmailInvalid,
		CodeUserPhoneTooShort,
		CodeUserContactMissing,
		CodeUserPasswordNotSet,
		CodePasswordWeak:
		return KindValidation

	case CodeDuplicateIdentity:
		return KindConflict
	case CodeMailSendFailed:
		return KindExternal
	case CodeCredentialsInvalid, CodeTokenInvalid, CodeTokenExpired:
		return KindUnauthenticated
	default:
		return KindUnknown
	}
}
