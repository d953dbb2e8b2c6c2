// internal/status/constants.go
package status

// Device status block layout constants.
// These values define the mirrored register layout and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of registers per source.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the source health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last fault code (see fault.Code).
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the source has not been OK.
const SlotSecondsInError = 2

// SlotValueAge holds the age in seconds of the visible value (65535 when absent).
const SlotValueAge = 3

// ---- RESERVED RANGE ----

// Slots 4-10 are reserved.
const SlotReservedStart = 4
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// MaxSeconds saturates counters; they never wrap.
const MaxSeconds uint16 = 65535

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state before the first read.
const HealthUnknown uint16 = 0

// HealthOK represents a successful last read.
const HealthOK uint16 = 1

// HealthError represents a failed read with no visible value.
const HealthError uint16 = 2

// HealthStale represents a failed read while the previous value is still within its lifetime.
const HealthStale uint16 = 3
