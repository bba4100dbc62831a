package storage

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RemoveStale deletes scratch artifacts an interrupted install left behind:
// temp code files, their library dirs and temp containers. It returns what
// was removed.
func RemoveStale(env *Env) ([]string, error) {
	env.InstallLock.Lock()
	defer env.InstallLock.Unlock()

	var removed []string
	patterns := []string{
		filepath.Join(env.AppDir, tempPrefix+"*"+tempSuffix),
		filepath.Join(env.PrivateAppDir, tempPrefix+"*"+tempSuffix),
		filepath.Join(env.LibDir, tempPrefix+"*"),
	}
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return removed, errors.Wrapf(err, "glob %s", pattern)
		}
		for _, m := range matches {
			if err := os.RemoveAll(m); err != nil {
				log.Warnf("storage: remove stale %s: %v", m, err)
				continue
			}
			removed = append(removed, m)
		}
	}

	if env.Containers == nil {
		return removed, nil
	}
	ids, err := env.Containers.List()
	if err != nil {
		return removed, errors.Wrap(err, "list containers")
	}
	for _, id := range ids {
		if ok, _ := doublestar.Match(tempCIDPrefix+"*", id); !ok {
			continue
		}
		if err := env.Containers.Destroy(id, true); err != nil {
			log.Warnf("storage: destroy stale container %s: %v", id, err)
			continue
		}
		removed = append(removed, id)
	}

	if len(removed) > 0 {
		log.Infof("storage: removed %d stale install artifacts", len(removed))
	}
	return removed, nil
}
