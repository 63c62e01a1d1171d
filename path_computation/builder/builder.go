package builder

import (
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"pce/constraints"
	"pce/path_computation/model"
	"pce/topology"
)

var ErrEndpointNotFound = errors.New("builder: endpoint node not found")

// Build turns an inventory snapshot into the request graph between aEnd and
// zEnd. Nodes and links are visited in id order so the result does not depend
// on the order of the snapshot.
func Build(network *topology.Network, cs constraints.ConstraintSet, aEnd, zEnd string) (*model.Graph, error) {
	if err := network.Validate(); err != nil {
		return nil, err
	}

	g := model.NewGraph()
	for _, raw := range sortedNodes(network.Nodes) {
		node := buildNode(raw, cs, aEnd, zEnd)
		if node == nil {
			continue
		}
		if _, dup := g.Nodes.Get(node.ID); dup {
			log.Warnf("Build: duplicate node %s, keeping the first", node.ID)
			continue
		}
		if node.Matches(aEnd) && g.AEnd == nil {
			node.End = model.EndA
			g.AEnd = node
		} else if node.Matches(zEnd) && g.ZEnd == nil {
			node.End = model.EndZ
			g.ZEnd = node
		}
		g.Nodes.Put(node.ID, node)
	}

	// SRGs joined to an endpoint transponder
	attached := make(map[string]bool)
	for _, raw := range sortedLinks(network.Links) {
		link, srg := buildLink(g, raw, cs)
		if link == nil {
			continue
		}
		if srg != "" {
			attached[srg] = true
		}
		g.AddLink(link)
	}

	for _, id := range g.Nodes.Keys() {
		node, _ := g.Nodes.Get(id)
		if node.Kind() != model.RoleSrg || attached[id] || node.End != model.EndNone {
			continue
		}
		log.Debugf("Build: srg %s not attached to an endpoint, removed", id)
		g.RemoveNode(id)
	}

	if g.AEnd == nil || g.ZEnd == nil {
		return nil, fmt.Errorf("%w: a-end=%s (found=%v), z-end=%s (found=%v)",
			ErrEndpointNotFound, aEnd, g.AEnd != nil, zEnd, g.ZEnd != nil)
	}
	log.Infof("Build: graph ready, a-end=%s, z-end=%s, nodes=%d, links=%d",
		g.AEnd.ID, g.ZEnd.ID, g.Nodes.Len(), g.Links.Len())
	return g, nil
}

func buildNode(raw *topology.Node, cs constraints.ConstraintSet, aEnd, zEnd string) *model.Node {
	if raw.SupportingNodeID == "" {
		log.Warnf("buildNode: node %s has no supporting node, skipped", raw.ID)
		return nil
	}
	role, err := model.NewRole(raw)
	if err != nil {
		log.Warnf("buildNode: node %s skipped: %v", raw.ID, err)
		return nil
	}

	node := &model.Node{
		ID:               raw.ID,
		SupportingNodeID: raw.SupportingNodeID,
		SupportingClli:   raw.SupportingClli,
		Role:             role,
	}
	// only the two endpoint transponders take part
	if role.Kind() == model.RoleXponder && !node.Matches(aEnd) && !node.Matches(zEnd) {
		return nil
	}
	if cs.IsExcluded(raw.ID, raw.SupportingNodeID) {
		log.Infof("buildNode: node %s excluded by constraints", raw.ID)
		return nil
	}

	if role.Kind() == model.RoleXponder {
		node.Wavelengths = model.FullWavelengthSet()
	} else {
		node.Wavelengths = model.NewWavelengthSet(raw.AvailableWavelengths...)
	}
	if !node.Valid() {
		log.Infof("buildNode: node %s invalid (wavelengths=%d, role=%s), skipped",
			raw.ID, node.Wavelengths.Len(), role.Kind())
		return nil
	}
	return node
}

// buildLink converts one inventory link. It returns the id of the SRG the
// link attaches to an endpoint transponder, if any.
func buildLink(g *model.Graph, raw *topology.Link, cs constraints.ConstraintSet) (*model.Link, string) {
	src, srcOK := g.Nodes.Get(raw.Source)
	dst, dstOK := g.Nodes.Get(raw.Dest)
	if !srcOK || !dstOK {
		return nil, ""
	}
	linkType, ok := model.ParseLinkType(raw.Type)
	if !ok {
		log.Warnf("buildLink: link %s has unknown type %q, dropped", raw.ID, raw.Type)
		return nil, ""
	}

	link := &model.Link{
		ID:        raw.ID,
		Type:      linkType,
		Source:    raw.Source,
		Dest:      raw.Dest,
		SourceTP:  raw.SourceTP,
		DestTP:    raw.DestTP,
		Opposite:  raw.Opposite,
		SRLGs:     append([]uint32(nil), raw.SRLGs...),
		OperState: raw.OperState,
	}
	if raw.Latency != nil {
		link.Latency = *raw.Latency
	}
	if !link.Valid() {
		log.Warnf("buildLink: link %s is incomplete, dropped", raw.ID)
		return nil, ""
	}
	if cs.HasExcludedSRLG(link.SRLGs) {
		log.Infof("buildLink: link %s carries an excluded srlg %v, dropped", raw.ID, link.SRLGs)
		return nil, ""
	}

	var err error
	var srg string
	switch linkType {
	case model.LinkXponderOutput:
		link.Client, err = xponderClient(src, raw.SourceTP)
		srg = srgID(dst)
	case model.LinkXponderInput:
		link.Client, err = xponderClient(dst, raw.DestTP)
		srg = srgID(src)
	case model.LinkAdd:
		link.Client, err = srgClient(src, linkType)
	case model.LinkDrop:
		link.Client, err = srgClient(dst, linkType)
	}
	if err != nil {
		log.Infof("buildLink: link %s dropped: %v", raw.ID, err)
		return nil, ""
	}
	return link, srg
}

func xponderClient(node *model.Node, networkTp string) (string, error) {
	role, ok := node.Role.(*model.XponderRole)
	if !ok {
		return "", fmt.Errorf("node %s is not a transponder", node.ID)
	}
	return role.Client(networkTp)
}

func srgClient(node *model.Node, linkType model.LinkType) (string, error) {
	role, ok := node.Role.(*model.SrgRole)
	if !ok {
		return "", fmt.Errorf("node %s is not an srg", node.ID)
	}
	return role.ClientPort(linkType)
}

func srgID(node *model.Node) string {
	if node.Kind() == model.RoleSrg {
		return node.ID
	}
	return ""
}

func sortedNodes(nodes []topology.Node) []*topology.Node {
	out := make([]*topology.Node, len(nodes))
	for i := range nodes {
		out[i] = &nodes[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedLinks(links []topology.Link) []*topology.Link {
	out := make([]*topology.Link, len(links))
	for i := range links {
		out[i] = &links[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
