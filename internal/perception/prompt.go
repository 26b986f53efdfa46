package perception

// analysisInstruction is the per-tile instruction sent alongside the tile
// image. The %s placeholder receives the JSON-encoded analysis context
// (catalog anchors plus security brief) carried forward from earlier tiles.
const analysisInstruction = `You are a UI deception auditor. Examine the attached interface screenshot
for manipulative design patterns: bait-and-switch pricing, false scarcity, visual interference,
sneaked-in basket items, confirmshaming, and hidden fees.

Prior audit context from earlier regions of this interface:
%s

Track every priced item (product, plan, subscription tier) you can see. Reuse the identifier of any
catalog anchor from the prior context that refers to the same item, and report its currently
displayed price exactly as rendered.

Respond with ONLY a JSON object, no prose, in this shape:
{
  "findings": [
    {
      "pattern_type": "BAIT-AND-SWITCH | SCARCITY | VISUAL-INTERFERENCE | SNEAK-IN | CONFIRMSHAMING | VERIFIED-FAIR",
      "box_2d": [ymin, xmin, ymax, xmax],
      "severity": "LOW | MEDIUM | HIGH",
      "truth_label": "one-line statement of what is actually true",
      "remediation": "one-line instruction for the user"
    }
  ],
  "reasoning": {
    "reasoning_path": "brief trace of what you inspected and why",
    "security_brief": "short carry-forward summary of this interface's risk posture",
    "catalog_anchors": [
      {
        "id": "stable identifier",
        "name": "display name",
        "price": "displayed price text",
        "num_price": 0.0,
        "box_2d": [ymin, xmin, ymax, xmax],
        "violated": false,
        "currently_visible": true
      }
    ]
  }
}

Coordinates are normalized to a 0-1000 space over this image. Use [0,0,0,0] only for findings with
no visual anchor. If the region is clean, return an empty findings list and say so in the brief.`
