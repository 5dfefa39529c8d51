package credential

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// groupFilePath is the /etc/group equivalent consulted by supplementalGIDs,
// overridable in tests.
var groupFilePath = "/etc/group"

// supplementalGIDs returns the set of group ids username belongs to via
// /etc/group membership lists, plus primaryGID, replicating initgroups(3)'s
// getgrouplist-then-setgroups behavior (spec.md §4.3 step 3).
func supplementalGIDs(username string, primaryGID int) ([]int, error) {
	f, err := os.Open(groupFilePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", groupFilePath, err)
	}
	defer f.Close()

	gids := map[int]struct{}{primaryGID: {}}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 {
			continue
		}
		members := strings.Split(fields[3], ",")
		for _, m := range members {
			if m == username {
				gid, err := strconv.Atoi(fields[2])
				if err != nil {
					continue
				}
				gids[gid] = struct{}{}
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read /etc/group: %w", err)
	}

	list := make([]int, 0, len(gids))
	for gid := range gids {
		list = append(list, gid)
	}
	return list, nil
}

// InitGroups sets the calling process's supplemental group list to exactly
// the groups rec belongs to (spec.md §4.3 step 3). Must be called before
// the auth adapter's session-open, which may append groups that a later
// call here would discard (invariant I4).
func InitGroups(rec *UserRecord) error {
	gids, err := supplementalGIDs(rec.Name, rec.GID)
	if err != nil {
		return err
	}

	groups := make([]int, len(gids))
	copy(groups, gids)
	return unix.Setgroups(groups)
}
