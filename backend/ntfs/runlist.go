package ntfs

// Run is one entry of a non-resident attribute's data-run list: length
// clusters starting at LCN (logical cluster number), or a sparse run when
// Sparse is true.
type Run struct {
	LCN    int64
	Length uint64
	Sparse bool
}

// DecodeRunList parses the variable-length run-list encoding used by
// non-resident attributes: each entry is a header byte (low nibble = length
// field byte count, high nibble = offset field byte count) followed by a
// little-endian length and a signed little-endian cluster offset relative
// to the previous run's LCN. A zero header byte terminates the list.
func DecodeRunList(data []byte) []Run {
	var runs []Run
	var currentLCN int64

	for i := 0; i < len(data); {
		header := data[i]
		if header == 0 {
			break
		}
		lenBytes := int(header & 0x0F)
		offBytes := int(header >> 4)
		i++
		if i+lenBytes+offBytes > len(data) {
			break
		}

		var length uint64
		for j := 0; j < lenBytes; j++ {
			length |= uint64(data[i+j]) << (8 * j)
		}
		i += lenBytes

		if offBytes == 0 {
			runs = append(runs, Run{Length: length, Sparse: true})
			continue
		}

		var offset int64
		for j := 0; j < offBytes; j++ {
			offset |= int64(data[i+j]) << (8 * j)
		}
		if data[i+offBytes-1]&0x80 != 0 {
			for j := offBytes; j < 8; j++ {
				offset |= int64(0xFF) << (8 * j)
			}
		}
		i += offBytes

		currentLCN += offset
		runs = append(runs, Run{LCN: currentLCN, Length: length})
	}

	return runs
}

// TotalClusters sums the cluster length of every run, sparse or not.
func TotalClusters(runs []Run) uint64 {
	var total uint64
	for _, r := range runs {
		total += r.Length
	}
	return total
}
