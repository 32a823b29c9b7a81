package help

const QuickstartYAML = `# region-maps Quick Start

pipeline:
  acquire: "Download <Region>.osm.pbf from the listing's extract link"
  filter: "osmium tags-filter -> <Region>.filtered.osm.pbf (raw removed)"
  convert: "java -jar osm-tickettoride.jar -> <Region>.map (filtered removed)"

commands:
  full_mirror: |
    region-maps prepare --output-dir ./maps

  one_country: |
    region-maps prepare --root-url https://download.geofabrik.de/europe/germany.html --output-dir ./maps/Germany

  shallow_run: |
    region-maps prepare --output-dir ./maps --max-depth 1

  from_config: |
    region-maps prepare --config region-maps.yaml

  recent_runs: |
    region-maps status --output-dir ./maps --details

  artifact_paths: |
    region-maps paths ./maps/Europe Germany

layout:
  - "<parent>/<Region>.osm.pbf       raw extract"
  - "<parent>/<Region>.filtered.osm.pbf  filtered extract"
  - "<parent>/<Region>.map           final map"
  - "<parent>/<Region>/              subregions of <Region>"
  - "<output>/manifest.yaml          every map in the tree after a run"
  - "<output>/region-maps.db         run ledger"

resume_rules:
  - "A stage runs only when its output and every later output are missing"
  - "Interrupted runs resume from whatever is on disk"
  - "Legacy <Region>/map-filtered.osm.pbf and <Region>/generated.map are moved into place"
  - "Region directories with no .map anywhere below them are deleted"

config_keys:
  - root_url
  - output_dir
  - osmium_binary
  - filter_criteria
  - java_binary
  - converter_jar
  - keep_filtered
  - max_depth
  - listing_cache_dir
  - listing_max_age
  - user_agent
  - http_timeout
  - db_path

error_behavior:
  - "Root listing unreachable: run fails"
  - "Subregion listing, download or tool failure: logged, siblings continue"
  - "Exit codes: 0=success, 1=partial failure or interrupted, 2=fatal"
`
