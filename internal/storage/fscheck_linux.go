//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var magics = map[int64]struct {
	name   string
	medium Medium
}{
	unix.NFS_SUPER_MAGIC:   {"nfs", MediumNetwork},
	unix.CIFS_SUPER_MAGIC:  {"cifs", MediumNetwork},
	unix.SMB_SUPER_MAGIC:   {"smbfs", MediumNetwork},
	unix.SMB2_SUPER_MAGIC:  {"smb2", MediumNetwork},
	unix.FUSE_SUPER_MAGIC:  {"fuse", MediumNetwork},
	unix.TMPFS_MAGIC:       {"tmpfs", MediumVolatile},
	unix.RAMFS_MAGIC:       {"ramfs", MediumVolatile},
	unix.EXT4_SUPER_MAGIC:  {"ext4", MediumLocal},
	unix.F2FS_SUPER_MAGIC:  {"f2fs", MediumLocal},
	unix.BTRFS_SUPER_MAGIC: {"btrfs", MediumLocal},
	unix.XFS_SUPER_MAGIC:   {"xfs", MediumLocal},
}

func detectFilesystem(path string) (string, Medium, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", MediumLocal, fmt.Errorf("statfs: %w", err)
	}
	if m, ok := magics[int64(st.Type)]; ok {
		return m.name, m.medium, nil
	}
	return fmt.Sprintf("0x%x", uint64(st.Type)), MediumLocal, nil
}
