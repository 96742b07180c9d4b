package diagnostics

// ErrorCode is a stable numeric classifier. Codes are grouped by phase:
// 4xxx namer, 5xxx resolver, 7xxx inference.
type ErrorCode int

// Namer
const (
	ErrRedefinitionOfMethod   ErrorCode = 4010
	ErrRedefinedAsDifferent   ErrorCode = 4012
	ErrModuleKindRedefinition ErrorCode = 4015
	ErrDuplicateVariable      ErrorCode = 4016
	ErrInvalidTypeDefinition  ErrorCode = 4017
	ErrOverloadWithoutSig     ErrorCode = 4018
)

// Resolver
const (
	ErrStubConstant              ErrorCode = 5002
	ErrDynamicSuperclass         ErrorCode = 5003
	ErrCircularDependency        ErrorCode = 5010
	ErrRedefinitionOfParents     ErrorCode = 5012
	ErrSuperclassIsModule        ErrorCode = 5013
	ErrIncludesNonModule         ErrorCode = 5014
	ErrInvalidTypeDeclaration    ErrorCode = 5004
	ErrBadTypeArity              ErrorCode = 5018
	ErrRecursiveTypeAlias        ErrorCode = 5021
	ErrInvalidMethodSignature    ErrorCode = 5022
	ErrBadMethodOverride         ErrorCode = 5035
	ErrParentTypeNotDeclared     ErrorCode = 5036
	ErrParentVarianceMismatch    ErrorCode = 5037
	ErrVariantTypeMemberInClass  ErrorCode = 5038
	ErrInvalidTypeMemberBounds   ErrorCode = 5039
	ErrTypeArgumentBound         ErrorCode = 5040
	ErrFieldRedeclared           ErrorCode = 5044
	ErrAbstractMethodWithBody    ErrorCode = 5046
	ErrAbstractMethodOutsideAbs  ErrorCode = 5047
	ErrBadAbstractMethod         ErrorCode = 5048
	ErrUndeclaredOverride        ErrorCode = 5050
	ErrOverridesFinal            ErrorCode = 5051
	ErrUnknownTypeParameter      ErrorCode = 5052
	ErrSubclassingFinal          ErrorCode = 5053
	ErrInstantiatingAbstract     ErrorCode = 5054
	ErrTypeMemberCycle           ErrorCode = 5055
)

// Inference
const (
	ErrUnknownMethod            ErrorCode = 7003
	ErrMethodArgumentMismatch   ErrorCode = 7002
	ErrMethodArgumentCount      ErrorCode = 7004
	ErrReturnTypeMismatch       ErrorCode = 7005
	ErrDeadBranch               ErrorCode = 7006
	ErrCastTypeMismatch         ErrorCode = 7007
	ErrPinnedVariable           ErrorCode = 7001
	ErrIncompatibleDeclared     ErrorCode = 7013
	ErrRevealType               ErrorCode = 7014
	ErrUntypedValue             ErrorCode = 7018
	ErrGenericInstantiation     ErrorCode = 7019
	ErrNotExhaustive            ErrorCode = 7026
	ErrFieldMismatch            ErrorCode = 7031
	ErrVoidValue                ErrorCode = 7032
	ErrMissingSignature         ErrorCode = 7017
	ErrUnnecessaryMust          ErrorCode = 7015
	ErrUndeclaredField          ErrorCode = 7043
	ErrBreakOutsideLoop         ErrorCode = 7044
)
