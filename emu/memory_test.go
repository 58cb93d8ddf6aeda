package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipssim/emu"
)

var _ = Describe("Memory", func() {
	var m *emu.Memory

	BeforeEach(func() {
		m = emu.NewMemory(4096)
	})

	It("should report its size", func() {
		Expect(m.Size()).To(Equal(4096))
	})

	It("should round-trip little-endian values", func() {
		m.Write32(0x100, 0xDEADBEEF)
		Expect(m.Read32(0x100)).To(Equal(uint32(0xDEADBEEF)))
		Expect(m.Read8(0x100)).To(Equal(uint8(0xEF)))
		Expect(m.Read8(0x103)).To(Equal(uint8(0xDE)))

		m.Write64(0x200, 0x0123456789ABCDEF)
		Expect(m.Read64(0x200)).To(Equal(uint64(0x0123456789ABCDEF)))
	})

	It("should copy byte slices", func() {
		m.WriteBytes(0x10, []byte{1, 2, 3, 4})
		Expect(m.ReadBytes(0x10, 4)).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should reject out-of-bounds ranges", func() {
		Expect(m.CheckBounds(0, 4)).To(Succeed())
		Expect(m.CheckBounds(4092, 4)).To(Succeed())
		Expect(m.CheckBounds(4093, 4)).To(HaveOccurred())
		Expect(m.CheckBounds(1<<32, 4)).To(HaveOccurred())
	})

	It("should drop out-of-bounds writes", func() {
		m.Write8(100000, 0xFF)
		Expect(m.Read8(100000)).To(Equal(uint8(0)))
	})
})
