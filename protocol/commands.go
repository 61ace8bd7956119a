package protocol

import (
	"encoding/binary"
	"fmt"
)

// BuildSelectCmd constructs a Select Object request.
//
// Frame structure:
//
//	[OP_SELECT][OBJECT_TYPE]
func BuildSelectCmd(objType ObjectType) ([]byte, error) {
	if err := validateObjectType(objType); err != nil {
		return nil, err
	}
	return []byte{byte(OpSelect), byte(objType)}, nil
}

// BuildCreateCmd constructs a Create Object request announcing size bytes.
//
// Frame structure:
//
//	[OP_CREATE][OBJECT_TYPE][SIZE(4, little-endian)]
func BuildCreateCmd(objType ObjectType, size uint32) ([]byte, error) {
	if err := validateObjectType(objType); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("object size cannot be zero")
	}

	frame := make([]byte, 6)
	frame[0] = byte(OpCreate)
	frame[1] = byte(objType)
	binary.LittleEndian.PutUint32(frame[2:], size)
	return frame, nil
}

// BuildCalculateChecksumCmd constructs a Calculate Checksum request.
//
// Frame structure:
//
//	[OP_CALCULATE_CHECKSUM]
func BuildCalculateChecksumCmd() []byte {
	return []byte{byte(OpCalculateChecksum)}
}

// BuildExecuteCmd constructs an Execute request.
//
// Frame structure:
//
//	[OP_EXECUTE]
func BuildExecuteCmd() []byte {
	return []byte{byte(OpExecute)}
}

// BuildSetReceiptNotificationCmd constructs a Set PRN request.
// An interval of 0 disables receipt notifications for data writes.
//
// Frame structure:
//
//	[OP_SET_PRN][INTERVAL(2, little-endian)]
func BuildSetReceiptNotificationCmd(interval uint16) []byte {
	frame := make([]byte, 3)
	frame[0] = byte(OpSetReceiptNotification)
	binary.LittleEndian.PutUint16(frame[1:], interval)
	return frame
}

func validateObjectType(objType ObjectType) error {
	switch objType {
	case ObjectCommand, ObjectData:
		return nil
	default:
		return fmt.Errorf("unsupported object type 0x%02X", byte(objType))
	}
}
