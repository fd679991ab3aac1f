package hwbinder

// Ioctl numbers (64-bit binder protocol, version 8).
const (
	ioctlWriteRead     = 0xC0306201
	ioctlSetMaxThreads = 0x40046205
	ioctlVersion       = 0xC0046209

	protocolVersion = 8
)

// Commands written to the driver.
const (
	bcTransaction   uint32 = 0x40406300
	bcFreeBuffer    uint32 = 0x40086303
	bcIncRefs       uint32 = 0x40046304
	bcAcquire       uint32 = 0x40046305
	bcRelease       uint32 = 0x40046306
	bcDecRefs       uint32 = 0x40046307
	bcTransactionSG uint32 = 0x40486311
)

// Returns read from the driver.
const (
	brError               uint32 = 0x80047200
	brOK                  uint32 = 0x7201
	brTransaction         uint32 = 0x80407202
	brReply               uint32 = 0x80407203
	brDeadReply           uint32 = 0x7205
	brTransactionComplete uint32 = 0x7206
	brIncRefs             uint32 = 0x80107207
	brAcquire             uint32 = 0x80107208
	brRelease             uint32 = 0x80107209
	brDecRefs             uint32 = 0x8010720a
	brNoop                uint32 = 0x720c
	brSpawnLooper         uint32 = 0x720d
	brFailedReply         uint32 = 0x7211
)

// Object types and flags.
const (
	typeBinder = 0x73622a85
	typeHandle = 0x73682a85
	typePtr    = 0x70742a85

	bufferHasParent = 0x01

	tfOneWay     = 0x01
	tfStatusCode = 0x08
	tfAcceptFDs  = 0x10
)

// Structure sizes on 64-bit kernels.
const (
	sizeTransactionData   = 64
	sizeTransactionDataSG = 72
	sizeFlatObject        = 24
	sizeBufferObject      = 40
	sizeHIDLString        = 16
)

// ManagerInterface is the descriptor of the HIDL service manager, which is
// always reachable at handle 0.
const ManagerInterface = "android.hidl.manager@1.0::IServiceManager"

const (
	managerHandle = 0
	managerGet    = 1
)

// DefaultDevice is the HIDL binder device node.
const DefaultDevice = "/dev/hwbinder"

// iocSize extracts the payload size encoded in a binder command word.
func iocSize(cmd uint32) int {
	return int((cmd >> 16) & 0x3fff)
}
