package dsdl

// uavcan.node.GetInfo.1.0
const (
	GetInfoServiceID       = 430
	GetInfoRequestExtent   = 0
	GetInfoResponseExtent  = 448
	GetInfoResponseMaxSize = 313

	GetInfoNameCapacity        = 50
	GetInfoImageCRCCapacity    = 1
	GetInfoCertificateCapacity = 222
)

// Version is uavcan.node.Version.1.0.
type Version struct {
	Major uint8
	Minor uint8
}

// GetInfoResponse is the response of uavcan.node.GetInfo.1.0.
type GetInfoResponse struct {
	ProtocolVersion       Version
	HardwareVersion       Version
	SoftwareVersion       Version
	SoftwareVCSRevisionID uint64
	UniqueID              [16]byte
	// Name is a reversed internet domain name, like "org.example.fc".
	Name string
	// SoftwareImageCRC is optional; only the first element is meaningful.
	SoftwareImageCRC          []uint64
	CertificateOfAuthenticity []byte
}

// MarshalTo serializes r into buf and returns the number of bytes written.
func (r *GetInfoResponse) MarshalTo(buf []byte) (int, error) {
	if len(r.SoftwareImageCRC) > GetInfoImageCRCCapacity {
		return 0, ErrBadLength
	}
	w := writer{buf: buf}
	w.u8(r.ProtocolVersion.Major)
	w.u8(r.ProtocolVersion.Minor)
	w.u8(r.HardwareVersion.Major)
	w.u8(r.HardwareVersion.Minor)
	w.u8(r.SoftwareVersion.Major)
	w.u8(r.SoftwareVersion.Minor)
	w.u64(r.SoftwareVCSRevisionID)
	w.raw(r.UniqueID[:])
	w.bytes([]byte(r.Name), GetInfoNameCapacity)
	w.u8(uint8(len(r.SoftwareImageCRC)))
	for _, crc := range r.SoftwareImageCRC {
		w.u64(crc)
	}
	w.bytes(r.CertificateOfAuthenticity, GetInfoCertificateCapacity)
	return w.result()
}

// Unmarshal deserializes r from buf.
func (r *GetInfoResponse) Unmarshal(buf []byte) error {
	rd := reader{buf: buf}
	r.ProtocolVersion = Version{Major: rd.u8(), Minor: rd.u8()}
	r.HardwareVersion = Version{Major: rd.u8(), Minor: rd.u8()}
	r.SoftwareVersion = Version{Major: rd.u8(), Minor: rd.u8()}
	r.SoftwareVCSRevisionID = rd.u64()
	rd.read(r.UniqueID[:])
	name, err := rd.bytes(GetInfoNameCapacity)
	if err != nil {
		return err
	}
	r.Name = string(name)
	n := int(rd.u8())
	if n > GetInfoImageCRCCapacity {
		return ErrBadLength
	}
	r.SoftwareImageCRC = nil
	for i := 0; i < n; i++ {
		r.SoftwareImageCRC = append(r.SoftwareImageCRC, rd.u64())
	}
	r.CertificateOfAuthenticity, err = rd.bytes(GetInfoCertificateCapacity)
	return err
}
