package canmotor

import (
	"encoding/binary"
	"testing"

	"go.viam.com/test"
)

func TestByteMask(t *testing.T) {
	test.That(t, byteMask(0, 0, 7), test.ShouldEqual, uint8(0xFF))
	test.That(t, byteMask(0, 4, 11), test.ShouldEqual, uint8(0xF0))
	test.That(t, byteMask(1, 4, 11), test.ShouldEqual, uint8(0x0F))
	test.That(t, byteMask(1, 0, 31), test.ShouldEqual, uint8(0xFF))
	test.That(t, byteMask(0, 2, 4), test.ShouldEqual, uint8(0x1C))
}

func TestExtract(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], uint32(0xFFFFFF38)) // -200
	binary.LittleEndian.PutUint16(data[4:6], 1500)
	data[6] = 0xAB

	t.Run("signed little endian", func(t *testing.T) {
		v, err := Signal{Scale: 0.5, Start: 0, Length: 32, LittleEndian: true, Signed: true}.Extract(data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v, test.ShouldEqual, -100)
	})

	t.Run("unsigned with offset", func(t *testing.T) {
		v, err := Signal{Scale: 0.1, Offset: 1, Start: 32, Length: 16, LittleEndian: true}.Extract(data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v, test.ShouldAlmostEqual, 151, 1e-9)
	})

	t.Run("sub-byte signal", func(t *testing.T) {
		v, err := Signal{Scale: 1, Start: 52, Length: 4, LittleEndian: true}.Extract(data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v, test.ShouldEqual, 0xA)

		v, err = Signal{Scale: 1, Start: 48, Length: 4, LittleEndian: true, Signed: true}.Extract(data)
		test.That(t, err, test.ShouldBeNil)
		// 0xB as a 4 bit two's complement value
		test.That(t, v, test.ShouldEqual, -5)
	})

	t.Run("big endian", func(t *testing.T) {
		payload := []byte{0x12, 0x34}
		v, err := Signal{Scale: 1, Start: 0, Length: 16}.Extract(payload)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v, test.ShouldEqual, 0x1234)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := Signal{Scale: 1, Start: 56, Length: 16, LittleEndian: true}.Extract(data)
		test.That(t, err, test.ShouldNotBeNil)
		_, err = Signal{Scale: 1, Length: 0}.Extract(data)
		test.That(t, err, test.ShouldNotBeNil)
	})
}
